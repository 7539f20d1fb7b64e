package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// AuditRecord 单次对账的结构化记录，固定列模式，追加写入供离线审计。
type AuditRecord struct {
	Timestamp       time.Time
	Sequence        int64 // 区块号或对账序号
	FreeBase        decimal.Decimal
	LockedBase      decimal.Decimal
	TotalBase       decimal.Decimal
	FreeQuote       decimal.Decimal
	LockedQuote     decimal.Decimal
	TotalQuote      decimal.Decimal
	TrackedPosition decimal.Decimal
	Drift           decimal.Decimal
	OpenOrders      int
	ReferencePrice  decimal.Decimal
	HasReference    bool
}

// AuditLog 基于 sqlite 的对账审计日志。
type AuditLog struct {
	db *sql.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS reconciliation_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	free_base TEXT NOT NULL,
	locked_base TEXT NOT NULL,
	total_base TEXT NOT NULL,
	free_quote TEXT NOT NULL,
	locked_quote TEXT NOT NULL,
	total_quote TEXT NOT NULL,
	tracked_position TEXT NOT NULL,
	drift TEXT NOT NULL,
	open_orders INTEGER NOT NULL,
	reference_price TEXT
);`

// OpenAuditLog 打开（必要时创建）审计数据库。
func OpenAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &AuditLog{db: db}, nil
}

// Append 追加一行对账记录。
func (a *AuditLog) Append(rec AuditRecord) error {
	var ref any
	if rec.HasReference {
		ref = rec.ReferencePrice.String()
	}
	_, err := a.db.Exec(`INSERT INTO reconciliation_runs
		(ts, sequence, free_base, locked_base, total_base,
		 free_quote, locked_quote, total_quote,
		 tracked_position, drift, open_orders, reference_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Sequence,
		rec.FreeBase.String(), rec.LockedBase.String(), rec.TotalBase.String(),
		rec.FreeQuote.String(), rec.LockedQuote.String(), rec.TotalQuote.String(),
		rec.TrackedPosition.String(), rec.Drift.String(),
		rec.OpenOrders, ref,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Count 已写入的记录数，供测试与运维查询。
func (a *AuditLog) Count() (int64, error) {
	var n int64
	err := a.db.QueryRow(`SELECT COUNT(*) FROM reconciliation_runs`).Scan(&n)
	return n, err
}

// Close 关闭数据库。
func (a *AuditLog) Close() error {
	return a.db.Close()
}
