package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EventType 交易所订单事件的封闭枚举。新增事件类型必须同时扩展
// Registry.OnEvent 的 switch，否则会落入 default 告警分支。
type EventType int

const (
	EventPlaced EventType = iota
	EventPartiallyFilled
	EventFullyFilled
	EventCancelled
	EventTimedOut
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventPlaced:
		return "PLACED"
	case EventPartiallyFilled:
		return "PARTIALLY_FILLED"
	case EventFullyFilled:
		return "FULLY_FILLED"
	case EventCancelled:
		return "CANCELLED"
	case EventTimedOut:
		return "TIMED_OUT"
	case EventFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// Event 交易所推送的订单事件。WebSocket 可能广播全市场的活动，
// 过滤归属在 Registry.OnEvent 内完成。
type Event struct {
	Type       EventType
	Cloid      string
	VenueID    int64
	HasVenueID bool

	Side Side

	// RemainingSize 交易所回报的剩余数量。成交数量由
	// previousKnownSize - RemainingSize 计算得出。
	RemainingSize decimal.Decimal
	HasSize       bool

	Price    decimal.Decimal
	HasPrice bool
}
