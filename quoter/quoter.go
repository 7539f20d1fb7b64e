// Package quoter 实现报价决策。一个 Quoter 负责一个报价层级，
// 即围绕参考价某个边际的一对买/卖单。
package quoter

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"mm-agent-go/order"
)

var bpsDivisor = decimal.NewFromInt(10000)

// Quoter 报价器接口。基础设施（订单跟踪、预注册、余额过滤、提交）
// 由 Orchestrator 负责，报价器只负责策略：定价、撤/留决策、订单构造。
type Quoter interface {
	// ID 稳定标识，嵌入 cloid 以便重启决策循环后把在簿订单归还给它。
	ID() string
	// Quantity 本层级的下单数量（base）。
	Quantity() decimal.Decimal
	// Decide 给定当前快照，输出撤单与新单。
	Decide(ctx Context) Decision
}

// cloidSeq 进程级单调计数器。同一毫秒内（哪怕跨报价器热重载）
// 生成的 cloid 也不会碰撞。
var cloidSeq atomic.Int64

// MakeCloid 生成 cloid：{side}-{quoterID}-{毫秒时间戳}-{序号}。
// 前缀可解析回所属报价器。
func MakeCloid(side string, quoterID string) string {
	return fmt.Sprintf("%s-%s-%d-%d", side, quoterID, time.Now().UnixMilli(), cloidSeq.Add(1))
}

// BidPrefix / AskPrefix 用于把在簿 cloid 匹配回报价器。
func BidPrefix(quoterID string) string { return "bid-" + quoterID + "-" }
func AskPrefix(quoterID string) string { return "ask-" + quoterID + "-" }

// OwnsCloid 判断 cloid 是否属于该报价器。
func OwnsCloid(quoterID, cloid string) bool {
	return strings.HasPrefix(cloid, BidPrefix(quoterID)) || strings.HasPrefix(cloid, AskPrefix(quoterID))
}

// OrderEdge 现有订单相对参考价的边际（bps），符号约定：正 = 对报价方有利。
func OrderEdge(price decimal.Decimal, side order.Side, reference decimal.Decimal) decimal.Decimal {
	if side == order.SideBuy {
		return reference.Sub(price).Div(reference).Mul(bpsDivisor)
	}
	return price.Sub(reference).Div(reference).Mul(bpsDivisor)
}

// PriceFromEdge 由边际（bps）反推挂单价。tick 对齐由交易所网关的
// 取整约定负责，这里不做。
func PriceFromEdge(edgeBps decimal.Decimal, side order.Side, reference decimal.Decimal) decimal.Decimal {
	frac := edgeBps.Div(bpsDivisor)
	if side == order.SideBuy {
		return reference.Mul(decimal.NewFromInt(1).Sub(frac))
	}
	return reference.Mul(decimal.NewFromInt(1).Add(frac))
}
