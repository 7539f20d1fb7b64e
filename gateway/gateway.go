// Package gateway 定义交易所网关边界并提供默认实现。
// 签名、tick 取整、链上确认等细节属于交易所侧的约定，不在本包职责内。
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"mm-agent-go/order"
)

// Gateway 做市核心消费的交易所能力。
type Gateway interface {
	// SubmitBatch 原子提交一批撤单与新单，返回交易引用。
	SubmitBatch(ctx context.Context, cancels []string, newOrders []order.NewOrder) (string, error)
	// OpenOrders 查询指定市场的全部在簿订单。注意查询接口滞后于
	// 真实状态一段不可预测的时间。
	OpenOrders(ctx context.Context, market string) ([]order.VenueOrder, error)
	// FreeBalances 查询可用余额（挂单占用的部分已扣除）。
	FreeBalances(ctx context.Context, account string) (base, quote decimal.Decimal, err error)
	// CancelAll 撤掉该市场全部在簿订单。
	CancelAll(ctx context.Context, market string) error
	// Sequence 当前区块号/序列标记，用于对账审计记录。
	Sequence(ctx context.Context) (int64, error)
}
