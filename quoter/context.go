package quoter

import (
	"github.com/shopspring/decimal"

	"mm-agent-go/order"
)

// Context 每个决策周期传给报价器的不可变市场快照。
// 由 Orchestrator 组装，报价器不触碰任何共享内部状态。
type Context struct {
	// 市场状态
	ReferencePrice decimal.Decimal

	// 仓位状态
	CurrentPosition decimal.Decimal
	MaxPosition     decimal.Decimal

	// 该报价器现有订单（由 Registry.Resolve 解析，可为 nil）
	ExistingBid *order.ExistingOrder
	ExistingAsk *order.ExistingOrder

	// 仓位上限标志（由 Orchestrator 计算）
	StopBids bool // 仓位 > MaxPosition
	StopAsks bool // 仓位 < -MaxPosition

	// 维持系数：撤单阈值 = 偏斜后目标边际 × (1 - MaintainFactor)
	MaintainFactor decimal.Decimal
}

// Decision 报价器的输出：撤哪些、挂哪些。
type Decision struct {
	Cancels   []string
	NewOrders []order.NewOrder
	// Deferred 表示因对侧仍在预注册状态而整体推迟到下一周期，
	// 避免对未确认的读发起写竞争。
	Deferred bool
}

// Empty 既无撤单也无新单。
func (d Decision) Empty() bool {
	return len(d.Cancels) == 0 && len(d.NewOrders) == 0
}
