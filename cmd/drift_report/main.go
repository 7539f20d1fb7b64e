// 离线工具：汇总对账审计库，输出漂移历史。
// 用来回答"仓位漂移是稳定常数还是在漂移"这个问题。
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type row struct {
	ts        string
	sequence  int64
	totalBase string
	tracked   string
	drift     string
	open      int
}

func main() {
	dbPath := flag.String("db", "data/reconcile_audit.db", "审计数据库路径")
	sinceStr := flag.String("since", "", "仅统计此时间之后的记录 (RFC3339)")
	tail := flag.Int("tail", 10, "打印最近 N 条记录")
	flag.Parse()

	since := ""
	if *sinceStr != "" {
		t, err := time.Parse(time.RFC3339Nano, *sinceStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "解析 since 参数失败: %v\n", err)
			os.Exit(1)
		}
		since = t.UTC().Format(time.RFC3339Nano)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("打开审计库失败: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT ts, sequence, total_base, tracked_position, drift, open_orders
		FROM reconciliation_runs WHERE ts >= ? ORDER BY id`, since)
	if err != nil {
		log.Fatalf("查询失败: %v", err)
	}
	defer rows.Close()

	var all []row
	maxAbs := decimal.Zero
	var first, last decimal.Decimal
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ts, &r.sequence, &r.totalBase, &r.tracked, &r.drift, &r.open); err != nil {
			log.Fatalf("读取行失败: %v", err)
		}
		d, err := decimal.NewFromString(r.drift)
		if err != nil {
			continue
		}
		if len(all) == 0 {
			first = d
		}
		last = d
		if d.Abs().GreaterThan(maxAbs) {
			maxAbs = d.Abs()
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("遍历失败: %v", err)
	}
	if len(all) == 0 {
		fmt.Println("没有对账记录")
		return
	}

	fmt.Printf("对账次数: %d\n", len(all))
	fmt.Printf("首次漂移: %s   最近漂移: %s   漂移变化: %s\n",
		first, last, last.Sub(first))
	fmt.Printf("最大绝对漂移: %s\n\n", maxAbs)

	start := len(all) - *tail
	if start < 0 {
		start = 0
	}
	fmt.Println("最近记录:")
	for _, r := range all[start:] {
		fmt.Printf("  %s  seq=%-10d total=%-12s tracked=%-12s drift=%-8s open=%d\n",
			r.ts, r.sequence, r.totalBase, r.tracked, r.drift, r.open)
	}
}
