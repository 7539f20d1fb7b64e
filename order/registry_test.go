package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// recordingSink 记录收到的成交
type recordingSink struct {
	fills []recordedFill
}

type recordedFill struct {
	side   Side
	filled decimal.Decimal
	price  decimal.Decimal
}

func (s *recordingSink) ApplyFill(side Side, filled, price decimal.Decimal) {
	s.fills = append(s.fills, recordedFill{side: side, filled: filled, price: price})
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func placedEvent(cloid string, venueID int64, side Side, price, size string) Event {
	return Event{
		Type: EventPlaced, Cloid: cloid,
		VenueID: venueID, HasVenueID: true,
		Side:  side,
		Price: dec(price), HasPrice: true,
		RemainingSize: dec(size), HasSize: true,
	}
}

func fillEvent(typ EventType, cloid string, side Side, price, remaining string) Event {
	return Event{
		Type: typ, Cloid: cloid, Side: side,
		Price: dec(price), HasPrice: true,
		RemainingSize: dec(remaining), HasSize: true,
	}
}

func TestPlacedThenPartialFill(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(sink, nil)

	r.Preregister("bid-50-1-1", SideBuy, dec("10"), time.Now())
	r.OnEvent(placedEvent("bid-50-1-1", 7001, SideBuy, "0.95", "10"))

	if r.IsPreregistered("bid-50-1-1") {
		t.Fatal("PLACED 之后不应再处于预注册状态")
	}

	r.OnEvent(fillEvent(EventPartiallyFilled, "bid-50-1-1", SideBuy, "0.95", "6"))
	if len(sink.fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(sink.fills))
	}
	if !sink.fills[0].filled.Equal(dec("4")) {
		t.Fatalf("filled = %s, want 4", sink.fills[0].filled)
	}

	// 第二次部分成交基于更新后的剩余量
	r.OnEvent(fillEvent(EventPartiallyFilled, "bid-50-1-1", SideBuy, "0.95", "1"))
	if !sink.fills[1].filled.Equal(dec("5")) {
		t.Fatalf("filled = %s, want 5", sink.fills[1].filled)
	}
}

func TestFillBeforePlacedUsesPreregistration(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(sink, nil)

	// 立即成交：FULLY_FILLED 抢在 PLACED 之前到达
	r.Preregister("ask-50-2-2", SideSell, dec("10"), time.Now())
	r.OnEvent(fillEvent(EventFullyFilled, "ask-50-2-2", SideSell, "1.05", "0"))

	if len(sink.fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(sink.fills))
	}
	if !sink.fills[0].filled.Equal(dec("10")) {
		t.Fatalf("filled = %s, want 10", sink.fills[0].filled)
	}
	if sink.fills[0].side != SideSell {
		t.Fatalf("side = %s, want sell", sink.fills[0].side)
	}
	if r.IsPreregistered("ask-50-2-2") {
		t.Fatal("成交归属后预注册应被清除")
	}
}

func TestDuplicateTerminalEventDoesNotDoubleCount(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(sink, nil)

	r.Preregister("bid-50-3-3", SideBuy, dec("10"), time.Now())
	r.OnEvent(placedEvent("bid-50-3-3", 7002, SideBuy, "0.95", "10"))
	r.OnEvent(fillEvent(EventFullyFilled, "bid-50-3-3", SideBuy, "0.95", "0"))

	if len(sink.fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(sink.fills))
	}

	// 重复投递同一终态事件：无法归属，账本不变
	r.OnEvent(fillEvent(EventFullyFilled, "bid-50-3-3", SideBuy, "0.95", "0"))
	if len(sink.fills) != 1 {
		t.Fatalf("重复终态事件不应再次入账, fills = %d", len(sink.fills))
	}
}

func TestUnattributableFillReportedNotApplied(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(sink, nil)

	notified := 0
	r.SetUnattributableHook(func() { notified++ })

	// bid- 前缀命中归属判断，但两张数量表都没有该 cloid
	r.OnEvent(fillEvent(EventFullyFilled, "bid-50-9-9", SideBuy, "0.95", "0"))

	if len(sink.fills) != 0 {
		t.Fatal("无法归属的成交不应更新账本")
	}
	if notified != 1 {
		t.Fatalf("notified = %d, want 1", notified)
	}
}

func TestRollbackPreregistration(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Preregister("bid-50-4-4", SideBuy, dec("10"), time.Now())
	r.RollbackPreregistration("bid-50-4-4")
	if r.IsPreregistered("bid-50-4-4") {
		t.Fatal("回滚后不应仍处于预注册状态")
	}
}

func TestSweepStalePreregistrations(t *testing.T) {
	r := NewRegistry(nil, nil)
	now := time.Now()
	r.Preregister("bid-50-5-5", SideBuy, dec("10"), now.Add(-10*time.Second))
	r.Preregister("ask-50-6-6", SideSell, dec("10"), now)

	stale := r.SweepStalePreregistrations(now, 5*time.Second)
	if len(stale) != 1 || stale[0] != "bid-50-5-5" {
		t.Fatalf("stale = %v, want [bid-50-5-5]", stale)
	}
	if !r.IsPreregistered("ask-50-6-6") {
		t.Fatal("未超时的预注册不应被清理")
	}
}

func TestLockedInventory(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.OnEvent(placedEvent("bid-50-7-7", 7003, SideBuy, "2", "10"))
	r.OnEvent(placedEvent("ask-50-8-8", 7004, SideSell, "3", "5"))

	base, quote := r.LockedInventory()
	if !base.Equal(dec("5")) {
		t.Fatalf("lockedBase = %s, want 5", base)
	}
	if !quote.Equal(dec("20")) {
		t.Fatalf("lockedQuote = %s, want 20", quote)
	}
}

func TestCancelRefund(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.OnEvent(placedEvent("bid-50-7-1", 7103, SideBuy, "2", "10"))
	r.OnEvent(placedEvent("ask-50-8-1", 7104, SideSell, "3", "5"))

	base, quote := r.CancelRefund([]string{"bid-50-7-1", "ask-50-8-1", "missing"})
	if !base.Equal(dec("5")) || !quote.Equal(dec("20")) {
		t.Fatalf("refund = (%s, %s), want (5, 20)", base, quote)
	}
}

func TestResolvePrecedence(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.Preregister("bid-50-10-1", SideBuy, dec("10"), time.Now())
	eo, ok := r.Resolve("bid-50-10-1", nil)
	if !ok || eo.Source != SourcePreregistered || eo.HasPrice {
		t.Fatalf("预注册订单 Resolve 结果不对: %+v", eo)
	}

	r.OnEvent(placedEvent("bid-50-10-1", 7005, SideBuy, "0.95", "10"))
	eo, ok = r.Resolve("bid-50-10-1", nil)
	if !ok || eo.Source != SourceCallback || !eo.Price.Equal(dec("0.95")) {
		t.Fatalf("回调缓存 Resolve 结果不对: %+v", eo)
	}

	// 交易所快照价优先于回调缓存价
	venue := map[string]VenueOrder{
		"bid-50-10-1": {VenueID: 7005, Side: SideBuy, Price: dec("0.96"), Size: dec("10")},
	}
	eo, ok = r.Resolve("bid-50-10-1", venue)
	if !ok || eo.Source != SourceOnVenue || !eo.Price.Equal(dec("0.96")) {
		t.Fatalf("交易所快照 Resolve 结果不对: %+v", eo)
	}

	if _, ok := r.Resolve("unknown-cloid", nil); ok {
		t.Fatal("未知 cloid 不应解析成功")
	}
}

func TestFindQuoterOrders(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.OnEvent(placedEvent("bid-50-11-1", 7006, SideBuy, "0.95", "10"))
	r.Preregister("ask-50-12-1", SideSell, dec("10"), time.Now())

	bid, ask := r.FindQuoterOrders("bid-50-", "ask-50-")
	if bid != "bid-50-11-1" {
		t.Fatalf("bid = %q", bid)
	}
	if ask != "ask-50-12-1" {
		t.Fatalf("ask = %q（应从预注册表兜底找到）", ask)
	}
}

func TestOrphanDetectionWithGrace(t *testing.T) {
	r := NewRegistry(nil, nil)
	now := time.Now()
	venueIDs := map[int64]struct{}{9001: {}}

	// 第一次看到：进入候选，不算超期
	if expired := r.ObserveVenueIDs(venueIDs, now, 3*time.Second); len(expired) != 0 {
		t.Fatalf("首次发现不应判定孤儿: %v", expired)
	}
	// 宽限期内：仍不超期
	if expired := r.ObserveVenueIDs(venueIDs, now.Add(time.Second), 3*time.Second); len(expired) != 0 {
		t.Fatal("宽限期内不应判定孤儿")
	}
	// 超过宽限期：判定孤儿
	expired := r.ObserveVenueIDs(venueIDs, now.Add(4*time.Second), 3*time.Second)
	if len(expired) != 1 || expired[0] != 9001 {
		t.Fatalf("expired = %v, want [9001]", expired)
	}
}

func TestOrphanClearedByLateCallback(t *testing.T) {
	r := NewRegistry(nil, nil)
	now := time.Now()
	venueIDs := map[int64]struct{}{9002: {}}

	r.ObserveVenueIDs(venueIDs, now, 3*time.Second)
	// 迟到的 PLACED 回调补上了映射
	r.OnEvent(placedEvent("bid-50-13-1", 9002, SideBuy, "0.95", "10"))

	if expired := r.ObserveVenueIDs(venueIDs, now.Add(10*time.Second), 3*time.Second); len(expired) != 0 {
		t.Fatalf("回调到达后不应再判定孤儿: %v", expired)
	}
}

func TestRecentlyCancelledSuppression(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.OnEvent(placedEvent("bid-50-14-1", 9003, SideBuy, "0.95", "10"))
	// 撤单回调已处理
	r.OnEvent(Event{Type: EventCancelled, Cloid: "bid-50-14-1", VenueID: 9003, HasVenueID: true})

	// 查询接口仍返回该订单（读延迟），不应进入孤儿候选
	venueIDs := map[int64]struct{}{9003: {}}
	now := time.Now()
	if expired := r.ObserveVenueIDs(venueIDs, now, 0); len(expired) != 0 {
		t.Fatalf("最近撤销的订单不应判定孤儿: %v", expired)
	}
}

func TestPurgePhantoms(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.OnEvent(placedEvent("bid-50-15-1", 9004, SideBuy, "0.95", "10"))
	r.OnEvent(placedEvent("ask-50-16-1", 9005, SideSell, "1.05", "10"))

	// 交易所只看得到 9005，9004 成了幻影
	purged := r.PurgePhantoms(map[int64]struct{}{9005: {}})
	if len(purged) != 1 || purged[0] != "bid-50-15-1" {
		t.Fatalf("purged = %v, want [bid-50-15-1]", purged)
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", r.ActiveCount())
	}
}

func TestClear(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(sink, nil)
	r.OnEvent(placedEvent("bid-50-17-1", 9006, SideBuy, "0.95", "10"))
	r.Preregister("ask-50-18-1", SideSell, dec("5"), time.Now())

	r.Clear()
	if r.ActiveCount() != 0 {
		t.Fatal("Clear 后不应有在簿订单")
	}
	if r.IsPreregistered("ask-50-18-1") {
		t.Fatal("Clear 后不应有预注册订单")
	}
}

func TestIgnoresForeignEvents(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(sink, nil)

	// 非自有命名、无任何映射的事件直接忽略
	r.OnEvent(fillEvent(EventFullyFilled, "someone-else-1", SideBuy, "1", "0"))
	if len(sink.fills) != 0 {
		t.Fatal("他人订单的成交不应入账")
	}
}

func TestMalformedFillSkipped(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(sink, nil)
	r.OnEvent(placedEvent("bid-50-19-1", 9007, SideBuy, "0.95", "10"))

	// 缺价格的成交事件：跳过，不崩溃不入账
	r.OnEvent(Event{
		Type: EventPartiallyFilled, Cloid: "bid-50-19-1", Side: SideBuy,
		RemainingSize: dec("5"), HasSize: true,
	})
	if len(sink.fills) != 0 {
		t.Fatal("畸形成交事件不应入账")
	}
}
