package order

import "github.com/shopspring/decimal"

// Side 订单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Status 订单生命周期状态。
type Status string

const (
	StatusPreregistered Status = "PREREGISTERED"    // 已发送，尚未被交易所确认
	StatusPlaced        Status = "PLACED"           // 已确认挂单
	StatusPartial       Status = "PARTIALLY_FILLED" // 部分成交（仍在订单簿上）
	StatusFilled        Status = "FULLY_FILLED"
	StatusCancelled     Status = "CANCELLED"
	StatusTimedOut      Status = "TIMED_OUT"
	StatusFailed        Status = "FAILED"
)

// Terminal 判断是否是终态。终态订单会被从所有跟踪结构中清除。
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusTimedOut, StatusFailed:
		return true
	default:
		return false
	}
}

// NewOrder 待提交的新限价单。
type NewOrder struct {
	Cloid string
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// VenueOrder 交易所回报的在簿订单（open-order 查询结果）。
type VenueOrder struct {
	VenueID int64
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal // 剩余数量
}

// Provenance 标记 ExistingOrder 的价格来源。
type Provenance string

const (
	SourceOnVenue       Provenance = "on_venue"      // 交易所 open-order 查询确认
	SourceCallback      Provenance = "callback"      // PLACED 回调缓存的本地价格
	SourcePreregistered Provenance = "preregistered" // 已发送未确认，无价格
	SourceUnknown       Provenance = "unknown"
)

// ExistingOrder 供报价器消费的只读订单快照。
type ExistingOrder struct {
	Cloid    string
	Side     Side
	Price    decimal.Decimal // Source 为 preregistered/unknown 时无意义
	HasPrice bool
	Source   Provenance
}
