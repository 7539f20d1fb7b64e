package quoter

import (
	"github.com/shopspring/decimal"

	"mm-agent-go/order"
)

// AlwaysReplaceQuoter 每周期无条件换单的对照实现：撤掉两侧现有订单，
// 按固定边际重挂。不做维持判断，换单频繁，仅用于低费率市场或测试对照。
type AlwaysReplaceQuoter struct {
	id       string
	edge     decimal.Decimal // bps
	quantity decimal.Decimal
}

func NewAlwaysReplaceQuoter(edgeBps, quantity decimal.Decimal) *AlwaysReplaceQuoter {
	return &AlwaysReplaceQuoter{
		id:       "always-" + edgeBps.String(),
		edge:     edgeBps,
		quantity: quantity,
	}
}

func (q *AlwaysReplaceQuoter) ID() string                { return q.id }
func (q *AlwaysReplaceQuoter) Quantity() decimal.Decimal { return q.quantity }

func (q *AlwaysReplaceQuoter) Decide(ctx Context) Decision {
	var d Decision

	for _, existing := range []*order.ExistingOrder{ctx.ExistingBid, ctx.ExistingAsk} {
		if existing == nil {
			continue
		}
		if existing.Source == order.SourcePreregistered || existing.Source == order.SourceUnknown {
			// 未确认的订单不碰，整体等下一周期
			return Decision{Deferred: true}
		}
		d.Cancels = append(d.Cancels, existing.Cloid)
	}

	if !ctx.StopBids {
		d.NewOrders = append(d.NewOrders, order.NewOrder{
			Cloid: MakeCloid("bid", q.id),
			Side:  order.SideBuy,
			Price: PriceFromEdge(q.edge, order.SideBuy, ctx.ReferencePrice),
			Size:  q.quantity,
		})
	}
	if !ctx.StopAsks {
		d.NewOrders = append(d.NewOrders, order.NewOrder{
			Cloid: MakeCloid("ask", q.id),
			Side:  order.SideSell,
			Price: PriceFromEdge(q.edge, order.SideSell, ctx.ReferencePrice),
			Size:  q.quantity,
		})
	}

	return d
}
