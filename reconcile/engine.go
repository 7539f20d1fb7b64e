// Package reconcile 实现定期对账：把本地账本/订单跟踪状态与
// 交易所回报的余额、在簿订单交叉核对，发现孤儿订单时执行全量恢复。
package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mm-agent-go/gateway"
	"mm-agent-go/inventory"
	"mm-agent-go/metrics"
	"mm-agent-go/order"
	"mm-agent-go/store"
)

// State 对账引擎状态。
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Pauser 孤儿恢复期间需要暂停/恢复的决策循环。
type Pauser interface {
	Pause()
	Resume()
}

const (
	// DriftAlarmThreshold 两次对账之间漂移变化的告警阈值（base 单位）。
	// 报警的是变化量而不是绝对值：稳定的常数漂移来自启动前的历史仓位，
	// 突然跳变才说明有成交没入账。
	DriftAlarmThreshold = 10

	// OrphanGrace 孤儿候选的回调宽限期。查询接口可能领先于回调，
	// 刚挂上的单在回调到达前短暂表现为孤儿。
	OrphanGrace = 3 * time.Second

	// FillGrace 恢复路径撤完全部订单后，等待飞行中成交回调落地的时间。
	FillGrace = 3 * time.Second

	// fullCheckEvery 每隔多少次对账做一次全量双向核对（幻影清理）。
	fullCheckEvery = 10

	recoverBackoffInit = time.Second
	recoverBackoffMax  = 8 * time.Second
)

// Config 对账引擎配置。
type Config struct {
	Market   string
	Account  string
	Interval time.Duration // 0 表示禁用
}

// Engine 对账引擎。所有字段在 NewEngine 后只读，运行状态由 state 管理。
type Engine struct {
	cfg      Config
	gw       gateway.Gateway
	registry *order.Registry
	ledger   *inventory.Ledger
	pauser   Pauser
	audit    *store.AuditLog // 可为 nil（审计禁用）
	met      *metrics.Set    // 可为 nil
	log      *zap.Logger

	// state 与 interval 被 Run 协程之外读写（State 观察、SetInterval 热更新）
	state    atomic.Int32
	interval atomic.Int64

	runCount  int
	lastDrift decimal.Decimal
	hasDrift  bool
	refPrice  func() (decimal.Decimal, bool)

	// 测试可覆盖的时间参数
	orphanGrace time.Duration
	fillGrace   time.Duration
	backoffInit time.Duration
	backoffMax  time.Duration
}

func NewEngine(cfg Config, gw gateway.Gateway, reg *order.Registry, led *inventory.Ledger, pauser Pauser, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:         cfg,
		gw:          gw,
		registry:    reg,
		ledger:      led,
		pauser:      pauser,
		log:         log,
		orphanGrace: OrphanGrace,
		fillGrace:   FillGrace,
		backoffInit: recoverBackoffInit,
		backoffMax:  recoverBackoffMax,
	}
	e.interval.Store(int64(cfg.Interval))
	return e
}

// LastDrift 最近一次对账的漂移。第一次对账前 ok 为 false。
func (e *Engine) LastDrift() (decimal.Decimal, bool) {
	return e.lastDrift, e.hasDrift
}

// SetAuditLog 注册审计日志（可选）。
func (e *Engine) SetAuditLog(a *store.AuditLog) { e.audit = a }

// SetMetrics 注册指标集合（可选）。
func (e *Engine) SetMetrics(m *metrics.Set) { e.met = m }

// SetReferencePrice 注册参考价来源，仅用于审计记录估值。
func (e *Engine) SetReferencePrice(fn func() (decimal.Decimal, bool)) { e.refPrice = fn }

// SetInterval 热更新对账间隔。下一轮 Run 循环生效，0 表示停止对账。
func (e *Engine) SetInterval(d time.Duration) { e.interval.Store(int64(d)) }

// State 当前状态。仅供 Run 协程以外的观察者读取近似值。
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Run 周期执行对账，阻塞直到 ctx 取消。Interval 为 0 时直接返回。
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.interval.Load())
	if interval <= 0 {
		e.log.Info("对账已禁用")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil {
				e.log.Warn("对账执行失败", zap.Error(err))
			}
			// 间隔可被热更新；更新为 0 时停止对账
			interval = time.Duration(e.interval.Load())
			if interval <= 0 {
				e.log.Info("对账已禁用")
				return
			}
			ticker.Reset(interval)
		}
	}
}

// RunOnce 执行一次对账。流程：
//  1. 余额 + 锁定库存 → 总持有量，与账本仓位求漂移，
//     漂移变化超阈值告警（只上报，不自动修正）；
//  2. 在簿订单 venue id 交叉核对，孤儿超宽限期触发全量恢复；
//  3. 每 fullCheckEvery 次做一轮反向核对，清除幻影订单；
//  4. 追加审计记录。
func (e *Engine) RunOnce(ctx context.Context) error {
	e.setState(StateRunning)
	defer func() {
		if e.State() == StateRunning {
			e.setState(StateIdle)
		}
	}()
	e.runCount++
	if e.met != nil {
		e.met.ReconcileRuns.Inc()
	}

	freeBase, freeQuote, err := e.gw.FreeBalances(ctx, e.cfg.Account)
	if err != nil {
		return err
	}
	lockedBase, lockedQuote := e.registry.LockedInventory()
	totalBase := freeBase.Add(lockedBase)
	totalQuote := freeQuote.Add(lockedQuote)

	tracked := e.ledger.Position()
	drift := totalBase.Sub(tracked)

	if e.hasDrift {
		delta := drift.Sub(e.lastDrift).Abs()
		if delta.GreaterThan(decimal.NewFromInt(DriftAlarmThreshold)) {
			e.log.Warn("仓位漂移突变：可能有成交未入账",
				zap.String("drift", drift.String()),
				zap.String("lastDrift", e.lastDrift.String()),
				zap.String("delta", delta.String()))
		}
	}
	e.lastDrift = drift
	e.hasDrift = true
	if e.met != nil {
		df, _ := drift.Float64()
		e.met.Drift.Set(df)
	}

	open, err := e.gw.OpenOrders(ctx, e.cfg.Market)
	if err != nil {
		return err
	}
	venueIDs := make(map[int64]struct{}, len(open))
	for _, o := range open {
		venueIDs[o.VenueID] = struct{}{}
	}

	orphans := e.registry.ObserveVenueIDs(venueIDs, time.Now(), e.orphanGrace)
	if len(orphans) > 0 {
		e.log.Error("孤儿订单超出宽限期，进入全量恢复",
			zap.Int64s("venueIDs", orphans))
		if err := e.recoverOrphans(ctx); err != nil {
			return err
		}
	}

	if e.runCount%fullCheckEvery == 0 {
		purged := e.registry.PurgePhantoms(venueIDs)
		if len(purged) > 0 && e.met != nil {
			e.met.PhantomsPurged.Add(float64(len(purged)))
		}
	}

	e.log.Info("对账完成",
		zap.String("totalBase", totalBase.String()),
		zap.String("tracked", tracked.String()),
		zap.String("drift", drift.String()),
		zap.Int("openOrders", len(open)))

	if e.audit != nil {
		rec := store.AuditRecord{
			Timestamp:       time.Now(),
			FreeBase:        freeBase,
			LockedBase:      lockedBase,
			TotalBase:       totalBase,
			FreeQuote:       freeQuote,
			LockedQuote:     lockedQuote,
			TotalQuote:      totalQuote,
			TrackedPosition: tracked,
			Drift:           drift,
			OpenOrders:      len(open),
		}
		if seq, serr := e.gw.Sequence(ctx); serr == nil {
			rec.Sequence = seq
		}
		if e.refPrice != nil {
			if p, ok := e.refPrice(); ok {
				rec.ReferencePrice = p
				rec.HasReference = true
			}
		}
		if aerr := e.audit.Append(rec); aerr != nil {
			e.log.Warn("审计记录写入失败", zap.Error(aerr))
		}
	}
	return nil
}

// recoverOrphans 孤儿恢复：暂停报价 → 反复撤单直到交易所零挂单
// （指数退避）→ 等飞行中成交落地 → 整体清空跟踪状态 → 恢复报价。
// 恢复后账本仓位保留（成交都已入账），只有订单跟踪从零开始。
func (e *Engine) recoverOrphans(ctx context.Context) error {
	e.setState(StateRecovering)
	defer func() { e.setState(StateIdle) }()
	if e.met != nil {
		e.met.OrphanRecoveries.Inc()
	}

	if e.pauser != nil {
		e.pauser.Pause()
		defer e.pauser.Resume()
	}

	backoff := e.backoffInit
	for {
		if err := e.gw.CancelAll(ctx, e.cfg.Market); err != nil {
			e.log.Warn("全量撤单失败，重试", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < e.backoffMax {
			backoff *= 2
			if backoff > e.backoffMax {
				backoff = e.backoffMax
			}
		}

		open, err := e.gw.OpenOrders(ctx, e.cfg.Market)
		if err != nil {
			e.log.Warn("恢复期间查询在簿订单失败，重试", zap.Error(err))
			continue
		}
		if len(open) == 0 {
			break
		}
		e.log.Info("仍有在簿订单，继续撤单", zap.Int("remaining", len(open)))
	}

	// 撤单产生的成交回调可能仍在路上，清空前必须等它们入账
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.fillGrace):
	}

	e.registry.Clear()
	e.log.Info("孤儿恢复完成，订单跟踪已重置")
	return nil
}
