package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mm-agent-go/config"
	"mm-agent-go/gateway"
	"mm-agent-go/internal/engine"
	"mm-agent-go/inventory"
	"mm-agent-go/logs"
	"mm-agent-go/metrics"
	"mm-agent-go/oracle"
	"mm-agent-go/order"
	"mm-agent-go/quoter"
	"mm-agent-go/reconcile"
	"mm-agent-go/store"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在是正常情况（生产环境用 systemd EnvironmentFile）
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logger, err := logs.New(logs.Config{
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		OutputFile: cfg.Logs.OutputFile,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Sync()

	met := metrics.NewSet(cfg.Market)
	metrics.StartServer(cfg.Metrics.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 仓位账本 + 持久化
	ledger := inventory.NewLedger(logger)
	seedLedger(cfg, ledger, logger)
	if cfg.StatePath != "" {
		statePath := cfg.StatePath
		ledger.SetPersister(func(s inventory.State) error {
			return store.SaveLedgerState(statePath, s.Position, s.QuoteFlow)
		})
	}

	// 订单注册表，成交直接入账
	registry := order.NewRegistry(&meteredFills{ledger: ledger, met: met}, logger)
	registry.SetUnattributableHook(met.UnattributableFills.Inc)

	// 网关 + 事件流
	gw := gateway.NewRESTGateway(gateway.RESTConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		APIKey:    cfg.Gateway.APIKey,
		APISecret: cfg.Gateway.APISecret,
		Timeout:   cfg.GatewayTimeout(),
	})
	feed := gateway.NewEventFeed(cfg.Gateway.WSURL, registry.OnEvent, logger)
	go feed.Run(ctx)

	// 参考价
	refPrice := buildOracle(cfg)

	// 报价器
	quoters, err := quoter.Build(factoryParams(cfg.Strategy), logger)
	if err != nil {
		log.Fatalf("构建报价器失败: %v", err)
	}

	orch, err := engine.New(engine.Config{
		Market:         cfg.Market,
		Account:        cfg.Account,
		CycleInterval:  cfg.CycleInterval(),
		MaxPosition:    decimal.NewFromFloat(cfg.Strategy.MaxPosition),
		MaintainFactor: decimal.NewFromFloat(cfg.Strategy.PropMaintain),
	}, engine.Components{
		Gateway:        gw,
		Registry:       registry,
		Ledger:         ledger,
		Quoters:        quoters,
		ReferencePrice: refPrice,
		Metrics:        met,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("初始化引擎失败: %v", err)
	}

	// 对账
	rec := reconcile.NewEngine(reconcile.Config{
		Market:   cfg.Market,
		Account:  cfg.Account,
		Interval: cfg.ReconcileInterval(),
	}, gw, registry, ledger, orch, logger)
	rec.SetMetrics(met)
	rec.SetReferencePrice(func() (decimal.Decimal, bool) {
		pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
		defer pcancel()
		return refPrice(pctx)
	})
	if cfg.Reconcile.AuditPath != "" {
		audit, err := store.OpenAuditLog(cfg.Reconcile.AuditPath)
		if err != nil {
			logger.Warn("打开审计库失败，审计禁用", zap.Error(err))
		} else {
			defer audit.Close()
			rec.SetAuditLog(audit)
		}
	}
	// 重建报价器后、恢复报价前先对账一次，确认撤单清场干净
	orch.SetReinitHook(func(hctx context.Context) {
		if err := rec.RunOnce(hctx); err != nil {
			logger.Warn("重建后对账失败", zap.Error(err))
		}
	})
	go rec.Run(ctx)

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("启动引擎失败: %v", err)
	}

	// 配置热更新
	go watchConfig(ctx, *cfgPath, cfg, orch, rec, logger)

	// systemd 集成
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdogLoop(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("收到退出信号，开始停机")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := orch.Stop(stopCtx); err != nil {
		logger.Error("停机失败", zap.Error(err))
	}
	cancel()
}

// meteredFills 把成交转给账本并计数。
type meteredFills struct {
	ledger *inventory.Ledger
	met    *metrics.Set
}

func (m *meteredFills) ApplyFill(side order.Side, filled, price decimal.Decimal) {
	m.ledger.ApplyFill(side, filled, price)
	m.met.Fills.Inc()
}

// seedLedger 注入初始账本状态：持久化状态 > 配置覆盖 > 零。
func seedLedger(cfg config.AppConfig, ledger *inventory.Ledger, logger *zap.Logger) {
	if cfg.StatePath != "" {
		saved, err := store.LoadLedgerState(cfg.StatePath)
		if err != nil {
			log.Fatalf("加载账本状态失败: %v", err)
		}
		if saved != nil {
			ledger.Seed(inventory.State{Position: saved.Position, QuoteFlow: saved.QuoteFlow})
			logger.Info("账本从持久化状态恢复",
				zap.String("position", saved.Position.String()),
				zap.String("quoteFlow", saved.QuoteFlow.String()))
			return
		}
	}
	if cfg.Strategy.OverrideStartPosition != nil {
		p := decimal.NewFromFloat(*cfg.Strategy.OverrideStartPosition)
		ledger.Seed(inventory.State{Position: p})
		logger.Info("账本按配置覆盖值初始化", zap.String("position", p.String()))
	}
}

// buildOracle 按配置组装参考价来源。
func buildOracle(cfg config.AppConfig) func(ctx context.Context) (decimal.Decimal, bool) {
	svc := oracle.NewService()
	switch cfg.Oracle.Source {
	case "coinbase":
		svc.AddSource("coinbase", oracle.NewCoinbaseSource(cfg.Oracle.Symbol))
	case "venue":
		svc.AddSource("venue", oracle.NewVenueSource(cfg.Gateway.BaseURL))
	case "average":
		svc.AddSource("coinbase", oracle.NewCoinbaseSource(cfg.Oracle.Symbol))
		svc.AddSource("venue", oracle.NewVenueSource(cfg.Gateway.BaseURL))
	}

	market := cfg.Market
	source := cfg.Oracle.Source
	return func(ctx context.Context) (decimal.Decimal, bool) {
		if source == "average" {
			return svc.AveragePrice(ctx, market)
		}
		return svc.Price(ctx, market, source)
	}
}

func factoryParams(s config.StrategyConfig) quoter.FactoryParams {
	p := quoter.FactoryParams{
		Type:        s.Type,
		Quantity:    decimal.NewFromFloat(s.Quantity),
		MaxPosition: decimal.NewFromFloat(s.MaxPosition),
		EntrySkew:   decimal.NewFromFloat(s.PropSkewEntry),
		ExitSkew:    decimal.NewFromFloat(s.PropSkewExit),
	}
	for _, bps := range s.QuotersBps {
		p.QuotersBps = append(p.QuotersBps, decimal.NewFromFloat(bps))
	}
	if s.QuantityBpsPerLevel != nil {
		d := decimal.NewFromFloat(*s.QuantityBpsPerLevel)
		p.QuantityBpsPerLevel = &d
	}
	return p
}

// watchConfig 监听配置文件并按变更等级应用。
func watchConfig(ctx context.Context, path string, current config.AppConfig, orch *engine.Orchestrator, rec *reconcile.Engine, logger *zap.Logger) {
	w := config.Watcher{Path: path, Log: logger}
	err := w.Start(ctx, func(next config.AppConfig) {
		class := config.Classify(current, next)
		logger.Info("配置已变更", zap.String("class", class.String()))

		switch class {
		case config.ChangeNone:
			return
		case config.ChangeRestart:
			logger.Error("配置变更需要重启进程才能生效（市场/预言机/网关/日志），忽略")
			return
		case config.ChangeReinit:
			quoters, err := quoter.Build(factoryParams(next.Strategy), logger)
			if err != nil {
				logger.Error("新报价器配置无效，沿用旧配置", zap.Error(err))
				return
			}
			rctx, rcancel := context.WithTimeout(ctx, 30*time.Second)
			defer rcancel()
			if err := orch.Reinit(rctx, quoters, decimal.NewFromFloat(next.Strategy.MaxPosition)); err != nil {
				logger.Error("报价器重建失败", zap.Error(err))
				return
			}
			fallthrough
		case config.ChangeLive:
			orch.ApplyLive(decimal.NewFromFloat(next.Strategy.PropMaintain), next.CycleInterval())
			rec.SetInterval(next.ReconcileInterval())
		}
		current = next
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("配置监听退出", zap.Error(err))
	}
}

// watchdogLoop systemd watchdog 心跳。未启用时直接返回。
func watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
