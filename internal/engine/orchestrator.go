// Package engine 实现决策循环：每个周期组装市场快照、逐个询问报价器、
// 合并决策、做余额过滤，然后预注册并批量提交。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mm-agent-go/gateway"
	"mm-agent-go/inventory"
	"mm-agent-go/metrics"
	"mm-agent-go/order"
	"mm-agent-go/quoter"
)

// State 引擎状态
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// PreregTimeout 预注册订单等待 PLACED 回调的超时。超时视为提交失败，
// 清掉占位让报价槽位可以重新使用。
const PreregTimeout = 5 * time.Second

// Config 引擎配置
type Config struct {
	Market         string
	Account        string
	CycleInterval  time.Duration
	MaxPosition    decimal.Decimal
	MaintainFactor decimal.Decimal
}

// Components 引擎依赖组件
type Components struct {
	Gateway  gateway.Gateway
	Registry *order.Registry
	Ledger   *inventory.Ledger
	Quoters  []quoter.Quoter
	// ReferencePrice 返回当前参考价；不可用时 ok=false，跳过该周期。
	ReferencePrice func(ctx context.Context) (decimal.Decimal, bool)
	Metrics        *metrics.Set // 可为 nil
	Logger         *zap.Logger
}

// Orchestrator 决策循环引擎。报价器是纯策略，所有共享状态
// （订单跟踪、仓位、余额）都由这里串行访问。
type Orchestrator struct {
	mu       sync.RWMutex
	config   Config
	quoters  []quoter.Quoter
	state    State
	skipNext bool // 交易失败后暂停一个周期

	gw       gateway.Gateway
	registry *order.Registry
	ledger   *inventory.Ledger
	refPrice func(ctx context.Context) (decimal.Decimal, bool)
	met      *metrics.Set
	logger   *zap.Logger

	stopChan chan struct{}
	doneChan chan struct{}

	// reinitHook 在 Reinit 撤单换报价器之后、恢复报价之前调用（仍处暂停态）。
	// 用于插入一次对账，确认清场干净。
	reinitHook func(ctx context.Context)
}

// New 创建引擎。
func New(cfg Config, components Components) (*Orchestrator, error) {
	if cfg.Market == "" {
		return nil, errors.New("market is required")
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = time.Second
	}
	if components.Gateway == nil || components.Registry == nil || components.Ledger == nil {
		return nil, errors.New("gateway/registry/ledger are required")
	}
	if components.ReferencePrice == nil {
		return nil, errors.New("reference price source is required")
	}
	if components.Logger == nil {
		components.Logger = zap.NewNop()
	}
	return &Orchestrator{
		config:   cfg,
		quoters:  components.Quoters,
		state:    StateIdle,
		gw:       components.Gateway,
		registry: components.Registry,
		ledger:   components.Ledger,
		refPrice: components.ReferencePrice,
		met:      components.Metrics,
		logger:   components.Logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start 启动引擎：先做启动撤单清场（上次进程可能留下挂单），再进入主循环。
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", o.state)
	}
	o.state = StateRunning
	o.mu.Unlock()

	o.logger.Info("启动前清场：撤掉遗留挂单", zap.String("market", o.config.Market))
	if err := o.gw.CancelAll(ctx, o.config.Market); err != nil {
		// 清场失败不阻止启动，孤儿订单会被对账捞回来
		o.logger.Warn("启动清场失败", zap.Error(err))
	}

	go o.run(ctx)
	o.logger.Info("决策循环已启动",
		zap.String("market", o.config.Market),
		zap.Duration("interval", o.config.CycleInterval),
		zap.Int("quoters", len(o.quoters)))
	return nil
}

// Stop 停止引擎并撤掉全部挂单。
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.state == StateStopped {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	select {
	case <-o.stopChan:
	default:
		close(o.stopChan)
	}
	select {
	case <-o.doneChan:
	case <-time.After(10 * time.Second):
		o.logger.Warn("等待决策循环退出超时")
	}

	if err := o.gw.CancelAll(ctx, o.config.Market); err != nil {
		o.logger.Error("停机撤单失败", zap.Error(err))
	}

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
	o.logger.Info("决策循环已停止")
	return nil
}

// Pause 暂停报价（对账恢复期间调用）。幂等。
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		o.state = StatePaused
		o.logger.Info("决策循环已暂停")
	}
}

// Resume 恢复报价。幂等。
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StatePaused {
		o.state = StateRunning
		o.logger.Info("决策循环已恢复")
	}
}

// GetState 当前状态。
func (o *Orchestrator) GetState() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// ApplyLive 应用可直接生效的参数。周期间隔在下一个 tick 后生效。
func (o *Orchestrator) ApplyLive(maintainFactor decimal.Decimal, cycleInterval time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.config.MaintainFactor = maintainFactor
	if cycleInterval > 0 {
		o.config.CycleInterval = cycleInterval
	}
	o.logger.Info("运行参数已热更新",
		zap.String("maintainFactor", maintainFactor.String()),
		zap.Duration("cycleInterval", o.config.CycleInterval))
}

// SetReinitHook 注册 Reinit 的暂停期回调。
func (o *Orchestrator) SetReinitHook(fn func(ctx context.Context)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reinitHook = fn
}

// Reinit 换一组报价器：暂停、撤掉现有报价、替换、恢复。
// 仓位账本与订单跟踪不受影响。
func (o *Orchestrator) Reinit(ctx context.Context, quoters []quoter.Quoter, maxPosition decimal.Decimal) error {
	o.Pause()
	defer o.Resume()

	// 撤单失败重试几次，旧参数的报价留在簿上会按新参数被误判
	var cancelErr error
	for attempt := 0; attempt < 3; attempt++ {
		if cancelErr = o.gw.CancelAll(ctx, o.config.Market); cancelErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("reinit cancel: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
	if cancelErr != nil {
		return fmt.Errorf("reinit cancel: %w", cancelErr)
	}

	o.mu.Lock()
	o.quoters = quoters
	o.config.MaxPosition = maxPosition
	hook := o.reinitHook
	o.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}

	o.logger.Info("报价器已重建",
		zap.Int("quoters", len(quoters)),
		zap.String("maxPosition", maxPosition.String()))
	return nil
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.doneChan)

	o.mu.RLock()
	interval := o.config.CycleInterval
	o.mu.RUnlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopChan:
			return
		case <-ticker.C:
			o.onCycle(ctx)
			// 间隔可被热更新
			o.mu.RLock()
			interval := o.config.CycleInterval
			o.mu.RUnlock()
			ticker.Reset(interval)
		}
	}
}

// onCycle 执行一个决策周期。
func (o *Orchestrator) onCycle(ctx context.Context) {
	o.mu.RLock()
	state := o.state
	skip := o.skipNext
	cfg := o.config
	quoters := o.quoters
	o.mu.RUnlock()

	if state != StateRunning {
		return
	}
	if skip {
		o.mu.Lock()
		o.skipNext = false
		o.mu.Unlock()
		o.logger.Warn("上一周期交易失败，本周期跳过")
		return
	}
	if o.met != nil {
		o.met.Cycles.Inc()
	}

	o.registry.SweepStalePreregistrations(time.Now(), PreregTimeout)

	ref, ok := o.refPrice(ctx)
	if !ok || ref.Sign() <= 0 {
		if o.met != nil {
			o.met.OracleUnavailable.Inc()
		}
		o.logger.Warn("参考价不可用，跳过本周期")
		return
	}

	open, err := o.gw.OpenOrders(ctx, cfg.Market)
	if err != nil {
		o.logger.Warn("查询在簿订单失败，跳过本周期", zap.Error(err))
		return
	}
	venueByCloid := o.registry.MapVenueOrders(open)

	position := o.ledger.Position()
	if o.met != nil {
		pf, _ := position.Float64()
		o.met.Position.Set(pf)
	}

	qctx := quoter.Context{
		ReferencePrice:  ref,
		CurrentPosition: position,
		MaxPosition:     cfg.MaxPosition,
		StopBids:        position.GreaterThan(cfg.MaxPosition),
		StopAsks:        position.LessThan(cfg.MaxPosition.Neg()),
		MaintainFactor:  cfg.MaintainFactor,
	}
	if qctx.StopBids || qctx.StopAsks {
		o.logger.Warn("仓位超限，单侧停止报价",
			zap.String("position", position.String()),
			zap.String("maxPosition", cfg.MaxPosition.String()))
	}

	var cancels []string
	var newOrders []order.NewOrder
	for _, q := range quoters {
		c := qctx
		bidCloid, askCloid := o.registry.FindQuoterOrders(quoter.BidPrefix(q.ID()), quoter.AskPrefix(q.ID()))
		if bidCloid != "" {
			if eo, ok := o.registry.Resolve(bidCloid, venueByCloid); ok {
				c.ExistingBid = &eo
			}
		}
		if askCloid != "" {
			if eo, ok := o.registry.Resolve(askCloid, venueByCloid); ok {
				c.ExistingAsk = &eo
			}
		}

		d := q.Decide(c)
		if d.Deferred || d.Empty() {
			continue
		}
		cancels = append(cancels, d.Cancels...)
		newOrders = append(newOrders, d.NewOrders...)
	}

	if len(cancels) == 0 && len(newOrders) == 0 {
		o.logPnL(ref, position)
		return
	}

	// 撤单在同一批次里先于新单执行，被撤订单锁定的余额会释放回来
	for _, cloid := range cancels {
		o.registry.DiscardActive(cloid)
	}
	newOrders = o.filterAffordable(ctx, cfg.Account, cancels, newOrders)

	now := time.Now()
	for _, no := range newOrders {
		o.registry.Preregister(no.Cloid, no.Side, no.Size, now)
	}

	txRef, err := o.gw.SubmitBatch(ctx, cancels, newOrders)
	if err != nil {
		for _, no := range newOrders {
			o.registry.RollbackPreregistration(no.Cloid)
		}
		if o.met != nil {
			o.met.SubmitFailures.Inc()
		}
		o.handleSubmitError(err)
		return
	}

	if o.met != nil {
		o.met.OrdersCancelled.Add(float64(len(cancels)))
		o.met.OrdersPlaced.Add(float64(len(newOrders)))
	}
	o.logger.Info("批量提交完成",
		zap.String("txRef", txRef),
		zap.Int("cancels", len(cancels)),
		zap.Int("newOrders", len(newOrders)),
		zap.String("reference", ref.String()))
	o.logPnL(ref, position)
}

// filterAffordable 余额过滤：先把撤单释放的余额加回可用余额，
// 再逐个判断新单是否买得起，买不起的丢弃（下一周期重试）。
func (o *Orchestrator) filterAffordable(ctx context.Context, account string, cancels []string, newOrders []order.NewOrder) []order.NewOrder {
	freeBase, freeQuote, err := o.gw.FreeBalances(ctx, account)
	if err != nil {
		// 余额查不到时保守放行，交易所侧会拒绝超额订单
		o.logger.Warn("余额查询失败，跳过余额过滤", zap.Error(err))
		return newOrders
	}
	refundBase, refundQuote := o.registry.CancelRefund(cancels)
	availBase := freeBase.Add(refundBase)
	availQuote := freeQuote.Add(refundQuote)

	kept := newOrders[:0]
	for _, no := range newOrders {
		if no.Side == order.SideBuy {
			cost := no.Size.Mul(no.Price)
			if cost.GreaterThan(availQuote) {
				o.logger.Warn("quote 余额不足，丢弃买单",
					zap.String("cloid", no.Cloid),
					zap.String("cost", cost.String()),
					zap.String("available", availQuote.String()))
				continue
			}
			availQuote = availQuote.Sub(cost)
		} else {
			if no.Size.GreaterThan(availBase) {
				o.logger.Warn("base 余额不足，丢弃卖单",
					zap.String("cloid", no.Cloid),
					zap.String("size", no.Size.String()),
					zap.String("available", availBase.String()))
				continue
			}
			availBase = availBase.Sub(no.Size)
		}
		kept = append(kept, no)
	}
	return kept
}

// handleSubmitError 按错误分类决定恢复策略。
func (o *Orchestrator) handleSubmitError(err error) {
	switch gateway.KindOf(err) {
	case gateway.KindTransient:
		o.logger.Warn("批量提交瞬时失败，下周期重试", zap.Error(err))
	case gateway.KindOrderRejected:
		o.logger.Warn("订单被拒", zap.Error(err))
	case gateway.KindAuthorization:
		o.logger.Error("鉴权失败，跳过本次提交", zap.Error(err))
	case gateway.KindTransaction:
		o.logger.Error("交易失败，暂停一个周期", zap.Error(err))
		o.mu.Lock()
		o.skipNext = true
		o.mu.Unlock()
	}
}

func (o *Orchestrator) logPnL(ref, position decimal.Decimal) {
	o.logger.Info("周期估值",
		zap.String("position", position.String()),
		zap.String("reference", ref.String()),
		zap.String("pnl", o.ledger.PnL(ref).StringFixed(4)),
		zap.Int("openOrders", o.registry.ActiveCount()))
}
