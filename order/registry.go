package order

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FillSink 接收已归属的成交。Position Ledger 实现该接口；
// Registry 是唯一的调用方，保证每笔成交恰好入账一次。
type FillSink interface {
	ApplyFill(side Side, filled, price decimal.Decimal)
}

type prereg struct {
	side Side
	size decimal.Decimal
	at   time.Time
}

type resting struct {
	side       Side
	price      decimal.Decimal
	size       decimal.Decimal // 剩余数量，部分成交时递减
	venueID    int64
	hasVenueID bool
}

// Registry 订单注册表：机器人对"当前在簿订单"的唯一本地信念。
//
// 所有相关映射（cloid↔venueId、数量、预注册、在簿快照、孤儿/最近撤销
// 时间戳）集中在一个互斥锁边界内，避免多张表更新不同步。
// 变更来源只有两个：事件回调路径和决策循环的预注册步骤，
// 两者通过 mu 串行化。
type Registry struct {
	mu    sync.Mutex
	log   *zap.Logger
	fills FillSink

	activeCloids  map[string]struct{}
	cloidToVenue  map[string]int64
	venueToCloid  map[int64]string
	orderSizes    map[string]decimal.Decimal
	preregistered map[string]prereg
	resting       map[string]*resting

	// 数据丢失事件（无法归属的成交）的附加通知，指标计数用
	onUnattributable func()

	// 孤儿候选：交易所可见但本地无映射的 venue id → 首次发现时间
	orphanFirstSeen map[int64]time.Time
	// 最近撤销：撤单回调已到但查询接口尚未反映，抑制误报孤儿
	recentlyCancelled map[int64]time.Time
}

// RecentlyCancelledWindow 撤单回调与查询接口之间的读延迟容忍窗口。
const RecentlyCancelledWindow = 5 * time.Second

func NewRegistry(fills FillSink, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:               log,
		fills:             fills,
		activeCloids:      make(map[string]struct{}),
		cloidToVenue:      make(map[string]int64),
		venueToCloid:      make(map[int64]string),
		orderSizes:        make(map[string]decimal.Decimal),
		preregistered:     make(map[string]prereg),
		resting:           make(map[string]*resting),
		orphanFirstSeen:   make(map[int64]time.Time),
		recentlyCancelled: make(map[int64]time.Time),
	}
}

// SetUnattributableHook 注册数据丢失事件的通知回调。启动期调用，不加锁。
func (r *Registry) SetUnattributableHook(fn func()) {
	r.onUnattributable = fn
}

// Preregister 在提交前登记订单。必须先于提交调用：成交事件可能
// 抢在挂单确认之前到达，预注册保证这类成交仍可归属。
func (r *Registry) Preregister(cloid string, side Side, size decimal.Decimal, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preregistered[cloid] = prereg{side: side, size: size, at: now}
}

// RollbackPreregistration 提交失败时撤销预注册，避免该报价槽位被永久占用。
func (r *Registry) RollbackPreregistration(cloid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.preregistered, cloid)
	delete(r.orderSizes, cloid)
}

// SweepStalePreregistrations 清理超时未确认的预注册，返回被清理的 cloid。
func (r *Registry) SweepStalePreregistrations(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []string
	for cloid, p := range r.preregistered {
		if now.Sub(p.at) > timeout {
			stale = append(stale, cloid)
		}
	}
	for _, cloid := range stale {
		delete(r.preregistered, cloid)
		delete(r.orderSizes, cloid)
		r.log.Warn("清理超时预注册订单", zap.String("cloid", cloid))
	}
	return stale
}

// owns 判断事件是否归属本机器人。WebSocket 会广播全市场活动，
// 非自己的订单直接忽略。调用方需持锁。
func (r *Registry) owns(ev Event) bool {
	if _, ok := r.activeCloids[ev.Cloid]; ok {
		return true
	}
	if _, ok := r.orderSizes[ev.Cloid]; ok {
		return true
	}
	if _, ok := r.preregistered[ev.Cloid]; ok {
		return true
	}
	if _, ok := r.cloidToVenue[ev.Cloid]; ok {
		return true
	}
	if ev.HasVenueID {
		if _, ok := r.venueToCloid[ev.VenueID]; ok {
			return true
		}
	}
	// 自有订单命名约定兜底
	return strings.HasPrefix(ev.Cloid, "bid-") || strings.HasPrefix(ev.Cloid, "ask-")
}

// OnEvent 交易所订单事件的唯一入口。畸形事件记日志后跳过，
// 绝不向上抛出：该路径运行在事件分发线程内，异常会中断全部报价。
func (r *Registry) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.owns(ev) {
		r.log.Debug("忽略非本机订单事件", zap.String("cloid", ev.Cloid))
		return
	}

	switch ev.Type {
	case EventPlaced:
		r.onPlaced(ev)
	case EventPartiallyFilled:
		r.onFill(ev, false)
	case EventFullyFilled:
		r.onFill(ev, true)
	case EventCancelled:
		r.cleanup(ev.Cloid, ev, true)
		r.log.Debug("订单已撤销", zap.String("cloid", ev.Cloid))
	case EventTimedOut:
		r.cleanup(ev.Cloid, ev, false)
		r.log.Warn("订单超时", zap.String("cloid", ev.Cloid), zap.Int64("venueID", ev.VenueID))
	case EventFailed:
		r.cleanup(ev.Cloid, ev, false)
		r.log.Error("订单失败", zap.String("cloid", ev.Cloid), zap.Int64("venueID", ev.VenueID))
	default:
		r.log.Warn("未知订单事件类型", zap.Int("type", int(ev.Type)), zap.String("cloid", ev.Cloid))
	}
}

func (r *Registry) onPlaced(ev Event) {
	if ev.Side == "" || !ev.HasSize {
		r.log.Warn("PLACED 事件缺少必需字段，跳过", zap.String("cloid", ev.Cloid))
		return
	}

	r.activeCloids[ev.Cloid] = struct{}{}
	if ev.HasVenueID {
		r.cloidToVenue[ev.Cloid] = ev.VenueID
		r.venueToCloid[ev.VenueID] = ev.Cloid
		// 回调到了，不再是孤儿
		delete(r.orphanFirstSeen, ev.VenueID)
	}

	// 确认预注册：数量迁入确认表
	if _, ok := r.preregistered[ev.Cloid]; ok {
		delete(r.preregistered, ev.Cloid)
	}
	if _, ok := r.orderSizes[ev.Cloid]; !ok {
		r.orderSizes[ev.Cloid] = ev.RemainingSize
	}

	r.resting[ev.Cloid] = &resting{
		side:       ev.Side,
		price:      ev.Price,
		size:       ev.RemainingSize,
		venueID:    ev.VenueID,
		hasVenueID: ev.HasVenueID,
	}

	r.log.Debug("订单已挂上订单簿",
		zap.String("cloid", ev.Cloid),
		zap.Int64("venueID", ev.VenueID),
		zap.String("size", ev.RemainingSize.String()))
}

// onFill 处理部分/完全成交。成交量 = previousKnownSize - 回报剩余量，
// previousKnownSize 取自确认数量表或预注册表（应恰好命中其一）。
// 两处都查不到即为数据丢失事件：记 error，不更新 Ledger（只上报，不静默修复）。
func (r *Registry) onFill(ev Event, full bool) {
	if ev.Side == "" || !ev.HasSize || !ev.HasPrice {
		r.log.Warn("成交事件缺少必需字段，跳过",
			zap.String("cloid", ev.Cloid), zap.String("type", ev.Type.String()))
		return
	}

	var previous decimal.Decimal
	attributed := false

	if sz, ok := r.orderSizes[ev.Cloid]; ok {
		previous = sz
		attributed = true
	} else if p, ok := r.preregistered[ev.Cloid]; ok {
		// 立即成交路径：PLACED 尚未到达，用预注册数量归属
		previous = p.size
		attributed = true
		delete(r.preregistered, ev.Cloid)
		if !full {
			// 部分成交后订单仍在簿上，视作已确认
			r.orderSizes[ev.Cloid] = ev.RemainingSize
		}
	}

	if !attributed {
		if r.onUnattributable != nil {
			r.onUnattributable()
		}
		r.log.Error("成交无法归属：cloid 不在数量表也不在预注册表，仓位未更新",
			zap.String("cloid", ev.Cloid),
			zap.String("side", string(ev.Side)),
			zap.String("remaining", ev.RemainingSize.String()))
		return
	}

	filled := previous.Sub(ev.RemainingSize)
	if filled.Sign() > 0 && r.fills != nil {
		r.fills.ApplyFill(ev.Side, filled, ev.Price)
	}

	if full {
		r.cleanup(ev.Cloid, ev, false)
		r.log.Info("订单完全成交",
			zap.String("cloid", ev.Cloid),
			zap.String("side", string(ev.Side)),
			zap.String("filled", filled.String()),
			zap.String("price", ev.Price.String()))
		return
	}

	r.orderSizes[ev.Cloid] = ev.RemainingSize
	if ro, ok := r.resting[ev.Cloid]; ok {
		ro.size = ev.RemainingSize
	}
	r.log.Info("订单部分成交",
		zap.String("cloid", ev.Cloid),
		zap.String("filled", filled.String()),
		zap.String("remaining", ev.RemainingSize.String()))
}

// cleanup 终态订单的统一清理。调用方需持锁。
func (r *Registry) cleanup(cloid string, ev Event, markRecentlyCancelled bool) {
	delete(r.activeCloids, cloid)
	delete(r.orderSizes, cloid)
	delete(r.preregistered, cloid)
	delete(r.resting, cloid)

	if venueID, ok := r.cloidToVenue[cloid]; ok {
		delete(r.cloidToVenue, cloid)
		delete(r.venueToCloid, venueID)
		if markRecentlyCancelled {
			r.recentlyCancelled[venueID] = time.Now()
		}
	}
	if ev.HasVenueID {
		delete(r.venueToCloid, ev.VenueID)
	}
}

// Resolve 为报价器构建只读快照。价格来源优先级：
// 交易所回报价 > PLACED 回调缓存价 > 预注册（无价格）。
func (r *Registry) Resolve(cloid string, venueByCloid map[string]VenueOrder) (ExistingOrder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vo, ok := venueByCloid[cloid]; ok {
		return ExistingOrder{Cloid: cloid, Side: vo.Side, Price: vo.Price, HasPrice: true, Source: SourceOnVenue}, true
	}
	if ro, ok := r.resting[cloid]; ok {
		return ExistingOrder{Cloid: cloid, Side: ro.side, Price: ro.price, HasPrice: true, Source: SourceCallback}, true
	}
	if p, ok := r.preregistered[cloid]; ok {
		return ExistingOrder{Cloid: cloid, Side: p.side, Source: SourcePreregistered}, true
	}
	if _, ok := r.activeCloids[cloid]; ok {
		// 记录在案但状态不明：持有不动
		return ExistingOrder{Cloid: cloid, Source: SourceUnknown}, true
	}
	return ExistingOrder{}, false
}

// FindQuoterOrders 按 cloid 前缀定位某个报价器现有的买/卖单。
// 先查活跃集合（回调驱动，无查询延迟），再查预注册表兜底。
func (r *Registry) FindQuoterOrders(bidPrefix, askPrefix string) (bidCloid, askCloid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cloid := range r.activeCloids {
		if strings.HasPrefix(cloid, bidPrefix) {
			bidCloid = cloid
		} else if strings.HasPrefix(cloid, askPrefix) {
			askCloid = cloid
		}
	}
	if bidCloid == "" {
		for cloid := range r.preregistered {
			if strings.HasPrefix(cloid, bidPrefix) {
				bidCloid = cloid
				break
			}
		}
	}
	if askCloid == "" {
		for cloid := range r.preregistered {
			if strings.HasPrefix(cloid, askPrefix) {
				askCloid = cloid
				break
			}
		}
	}
	return bidCloid, askCloid
}

// LockedInventory 由本地跟踪的在簿订单计算锁定库存，无需查询交易所：
// 买单锁定 quote（数量×价格），卖单锁定 base。
func (r *Registry) LockedInventory() (lockedBase, lockedQuote decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ro := range r.resting {
		if ro.side == SideBuy {
			lockedQuote = lockedQuote.Add(ro.size.Mul(ro.price))
		} else {
			lockedBase = lockedBase.Add(ro.size)
		}
	}
	return lockedBase, lockedQuote
}

// CancelRefund 估算一组撤单将释放的余额：买单释放 quote（数量×价格），
// 卖单释放 base。余额过滤先加回这部分，再判断新单是否买得起。
func (r *Registry) CancelRefund(cloids []string) (base, quote decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cloid := range cloids {
		ro, ok := r.resting[cloid]
		if !ok {
			continue
		}
		if ro.side == SideBuy {
			quote = quote.Add(ro.size.Mul(ro.price))
		} else {
			base = base.Add(ro.size)
		}
	}
	return base, quote
}

// MapVenueOrders 把交易所 open-order 列表翻译成 cloid 索引（仅自有订单）。
func (r *Registry) MapVenueOrders(open []VenueOrder) map[string]VenueOrder {
	r.mu.Lock()
	defer r.mu.Unlock()

	byCloid := make(map[string]VenueOrder, len(open))
	for _, vo := range open {
		if cloid, ok := r.venueToCloid[vo.VenueID]; ok {
			byCloid[cloid] = vo
		}
	}
	return byCloid
}

// DiscardActive 把 cloid 移出活跃集合。决策循环在生成撤单后调用，
// 避免下一轮把这个将死的 cloid 误认为槽位仍被占用。
func (r *Registry) DiscardActive(cloid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activeCloids, cloid)
}

// TrackedVenueIDs 本地已知的全部 venue id（在簿快照 + 映射表）。
func (r *Registry) TrackedVenueIDs() map[int64]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make(map[int64]struct{}, len(r.cloidToVenue))
	for _, ro := range r.resting {
		if ro.hasVenueID {
			ids[ro.venueID] = struct{}{}
		}
	}
	for _, id := range r.cloidToVenue {
		ids[id] = struct{}{}
	}
	return ids
}

// ActiveCount 当前在簿订单数。
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resting)
}

// ObserveVenueIDs 对账时喂入交易所回报的 venue id 集合，维护孤儿候选表。
// 返回超过宽限期仍无回调的孤儿（回调已丢失，需要触发恢复）。
func (r *Registry) ObserveVenueIDs(venueIDs map[int64]struct{}, now time.Time, grace time.Duration) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 清理过期的"最近撤销"记录
	for id, ts := range r.recentlyCancelled {
		if now.Sub(ts) > RecentlyCancelledWindow {
			delete(r.recentlyCancelled, id)
		}
	}

	tracked := make(map[int64]struct{}, len(r.cloidToVenue))
	for _, ro := range r.resting {
		if ro.hasVenueID {
			tracked[ro.venueID] = struct{}{}
		}
	}
	for _, id := range r.cloidToVenue {
		tracked[id] = struct{}{}
	}

	missing := make(map[int64]struct{})
	for id := range venueIDs {
		if _, ok := tracked[id]; ok {
			continue
		}
		if _, ok := r.recentlyCancelled[id]; ok {
			// 自己撤的单，查询接口还没反映，不算孤儿
			continue
		}
		missing[id] = struct{}{}
	}

	if len(missing) == 0 {
		// 此前的孤儿候选都已收到回调
		if len(r.orphanFirstSeen) > 0 {
			r.orphanFirstSeen = make(map[int64]time.Time)
		}
		return nil
	}

	var expired []int64
	for id := range missing {
		first, seen := r.orphanFirstSeen[id]
		if !seen {
			r.orphanFirstSeen[id] = now
			r.log.Warn("发现孤儿订单：交易所可见但无本地回调，等待迟到回调",
				zap.Int64("venueID", id), zap.Duration("grace", grace))
			continue
		}
		if now.Sub(first) > grace {
			expired = append(expired, id)
		}
	}
	return expired
}

// PurgePhantoms 清除幻影订单：本地跟踪但交易所已不可见。
// 只做轻量清理，不触发重量级的孤儿恢复路径。返回被清除的 cloid。
func (r *Registry) PurgePhantoms(venueIDs map[int64]struct{}) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged []string
	for cloid, ro := range r.resting {
		if !ro.hasVenueID {
			continue
		}
		if _, ok := venueIDs[ro.venueID]; !ok {
			delete(r.resting, cloid)
			purged = append(purged, cloid)
			r.log.Warn("清除幻影订单：本地跟踪但交易所不可见",
				zap.String("cloid", cloid), zap.Int64("venueID", ro.venueID))
		}
	}
	return purged
}

// Clear 整体清空全部跟踪状态。孤儿恢复路径确认交易所零挂单、
// 等完飞行中的成交回调之后调用，之后从空基线重新开始报价。
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activeCloids = make(map[string]struct{})
	r.cloidToVenue = make(map[string]int64)
	r.venueToCloid = make(map[int64]string)
	r.orderSizes = make(map[string]decimal.Decimal)
	r.preregistered = make(map[string]prereg)
	r.resting = make(map[string]*resting)
	r.orphanFirstSeen = make(map[int64]time.Time)
	r.log.Info("订单跟踪状态已整体清空")
}

// IsPreregistered 仅供测试与调试。
func (r *Registry) IsPreregistered(cloid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.preregistered[cloid]
	return ok
}
