// 应急工具：撤掉指定市场的全部挂单并确认交易所已清空。
// 代理进程异常退出、留下一堆挂单时手工执行。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"mm-agent-go/config"
	"mm-agent-go/gateway"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	timeout := flag.Duration("timeout", time.Minute, "整体超时")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	gw := gateway.NewRESTGateway(gateway.RESTConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		APIKey:    cfg.Gateway.APIKey,
		APISecret: cfg.Gateway.APISecret,
		Timeout:   cfg.GatewayTimeout(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("撤销 %s 全部挂单...\n", cfg.Market)
	backoff := time.Second
	for {
		if err := gw.CancelAll(ctx, cfg.Market); err != nil {
			log.Printf("撤单请求失败: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Fatal("超时：交易所仍有挂单")
		case <-time.After(backoff):
		}
		if backoff < 8*time.Second {
			backoff *= 2
		}

		open, err := gw.OpenOrders(ctx, cfg.Market)
		if err != nil {
			log.Printf("查询挂单失败: %v", err)
			continue
		}
		if len(open) == 0 {
			fmt.Println("交易所已确认零挂单")
			return
		}
		fmt.Printf("仍有 %d 张挂单，继续撤...\n", len(open))
	}
}
