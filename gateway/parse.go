package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"mm-agent-go/order"
)

// eventPayload 交易所 WS 推送的订单事件原始格式。
type eventPayload struct {
	Type    string  `json:"type"`
	Cloid   string  `json:"cloid"`
	OrderID *int64  `json:"orderid"`
	Side    string  `json:"side"`
	Price   *string `json:"price"`
	Size    *string `json:"size"` // 剩余数量
}

// ParseEvent 解析 WS 消息为订单事件。未知类型与畸形 JSON 返回错误，
// 由读循环记日志后丢弃；缺字段不算错误，由 Registry 按畸形事件跳过。
func ParseEvent(raw []byte) (order.Event, error) {
	var p eventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return order.Event{}, fmt.Errorf("parse event: %w", err)
	}

	var ev order.Event
	switch p.Type {
	case "order_placed":
		ev.Type = order.EventPlaced
	case "order_partially_filled":
		ev.Type = order.EventPartiallyFilled
	case "order_fully_filled":
		ev.Type = order.EventFullyFilled
	case "order_cancelled":
		ev.Type = order.EventCancelled
	case "order_timeout":
		ev.Type = order.EventTimedOut
	case "order_failed":
		ev.Type = order.EventFailed
	default:
		return order.Event{}, fmt.Errorf("unknown event type %q", p.Type)
	}

	ev.Cloid = p.Cloid
	if p.OrderID != nil {
		ev.VenueID = *p.OrderID
		ev.HasVenueID = true
	}
	switch p.Side {
	case "buy":
		ev.Side = order.SideBuy
	case "sell":
		ev.Side = order.SideSell
	}
	if p.Price != nil {
		if d, err := decimal.NewFromString(*p.Price); err == nil {
			ev.Price = d
			ev.HasPrice = true
		}
	}
	if p.Size != nil {
		if d, err := decimal.NewFromString(*p.Size); err == nil {
			ev.RemainingSize = d
			ev.HasSize = true
		}
	}
	return ev, nil
}
