package quoter

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mm-agent-go/order"
)

var one = decimal.NewFromInt(1)
var negOne = decimal.NewFromInt(-1)

// SkewQuoter 仓位偏斜报价器，带维持系数撤单逻辑。
//
//   - 按仓位占上限的比例加宽/收窄边际：持多时买侧变宽（减缓继续买入）、
//     卖侧收窄（加速卖出减仓）；持空镜像。建仓与减仓的偏斜系数独立可调。
//   - 只撤边际已漂移到阈值以下的订单，不是每周期都换单（降低换单损耗）。
//   - 买卖耦合：一侧换单时强制另一侧一起换，保证两侧始终按同一偏斜定价。
type SkewQuoter struct {
	id           string
	baselineEdge decimal.Decimal // bps
	quantity     decimal.Decimal
	entrySkew    decimal.Decimal
	exitSkew     decimal.Decimal
	log          *zap.Logger
}

// SkewParams SkewQuoter 的构造参数。
type SkewParams struct {
	BaselineEdgeBps decimal.Decimal
	Quantity        decimal.Decimal
	EntrySkew       decimal.Decimal
	ExitSkew        decimal.Decimal
}

func NewSkewQuoter(p SkewParams, log *zap.Logger) *SkewQuoter {
	if log == nil {
		log = zap.NewNop()
	}
	return &SkewQuoter{
		// id 嵌入基准边际，保持 cloid 格式跨重启稳定（如 "bid-50-..."）
		id:           p.BaselineEdgeBps.String(),
		baselineEdge: p.BaselineEdgeBps,
		quantity:     p.Quantity,
		entrySkew:    p.EntrySkew,
		exitSkew:     p.ExitSkew,
		log:          log,
	}
}

func (q *SkewQuoter) ID() string                { return q.id }
func (q *SkewQuoter) Quantity() decimal.Decimal { return q.quantity }

// skewedEdges 计算偏斜后的买/卖边际。
func (q *SkewQuoter) skewedEdges(ctx Context) (bidEdge, askEdge decimal.Decimal) {
	prop := decimal.Zero
	if !ctx.MaxPosition.IsZero() {
		prop = ctx.CurrentPosition.Div(ctx.MaxPosition)
	}
	// clamp 到 [-1, 1]
	if prop.GreaterThan(one) {
		prop = one
	} else if prop.LessThan(negOne) {
		prop = negOne
	}

	if prop.Sign() > 0 {
		// 持多：买侧变宽，卖侧收窄
		bidEdge = q.baselineEdge.Mul(one.Add(prop.Mul(q.entrySkew)))
		askEdge = q.baselineEdge.Mul(one.Sub(prop.Mul(q.exitSkew)))
	} else {
		// 持空（或零仓）：买侧收窄（加速买回减仓），卖侧变宽。
		// prop 为负，Add/Sub 的方向与持多分支相反
		bidEdge = q.baselineEdge.Mul(one.Add(prop.Mul(q.exitSkew)))
		askEdge = q.baselineEdge.Mul(one.Sub(prop.Mul(q.entrySkew)))
	}
	return bidEdge, askEdge
}

// evaluate 评估单侧现有订单：是否需要换单、需要撤哪个。
func (q *SkewQuoter) evaluate(
	existing *order.ExistingOrder,
	side order.Side,
	cancelThreshold decimal.Decimal,
	reference decimal.Decimal,
	stopSide bool,
) (needNew bool, cancelCloid string) {
	if existing == nil {
		return true, "" // 没有订单，需要新挂
	}

	switch existing.Source {
	case order.SourcePreregistered:
		// 已发送未确认，持有不动
		return false, ""
	case order.SourceUnknown:
		return false, ""
	}

	if !existing.HasPrice {
		return false, ""
	}

	if stopSide {
		// 仓位上限硬停：无条件撤，不补挂（优先级高于边际判断）
		q.log.Debug("仓位超限，撤单",
			zap.String("quoter", q.id), zap.String("cloid", existing.Cloid))
		return true, existing.Cloid
	}

	edge := OrderEdge(existing.Price, side, reference)
	if edge.GreaterThanOrEqual(cancelThreshold) {
		q.log.Debug("边际仍达标，保留订单",
			zap.String("quoter", q.id),
			zap.String("cloid", existing.Cloid),
			zap.String("edge", edge.StringFixed(1)),
			zap.String("threshold", cancelThreshold.StringFixed(1)))
		return false, ""
	}

	q.log.Debug("边际跌破阈值，撤单",
		zap.String("quoter", q.id),
		zap.String("cloid", existing.Cloid),
		zap.String("edge", edge.StringFixed(1)),
		zap.String("threshold", cancelThreshold.StringFixed(1)))
	return true, existing.Cloid
}

func (q *SkewQuoter) Decide(ctx Context) Decision {
	var d Decision

	bidEdge, askEdge := q.skewedEdges(ctx)
	keep := one.Sub(ctx.MaintainFactor)
	bidThreshold := bidEdge.Mul(keep)
	askThreshold := askEdge.Mul(keep)

	needBid, bidCancel := q.evaluate(ctx.ExistingBid, order.SideBuy, bidThreshold, ctx.ReferencePrice, ctx.StopBids)
	if bidCancel != "" {
		d.Cancels = append(d.Cancels, bidCancel)
	}
	needAsk, askCancel := q.evaluate(ctx.ExistingAsk, order.SideSell, askThreshold, ctx.ReferencePrice, ctx.StopAsks)
	if askCancel != "" {
		d.Cancels = append(d.Cancels, askCancel)
	}

	// 耦合：一侧换单则另一侧强制一起换；对侧仍在预注册时整体推迟，
	// 避免对未确认的订单发起撤单。
	if needBid && !needAsk {
		if ctx.ExistingAsk != nil && ctx.ExistingAsk.Source == order.SourcePreregistered {
			q.log.Debug("耦合：卖侧仍在预注册，本周期整体跳过", zap.String("quoter", q.id))
			return Decision{Deferred: true}
		}
		needAsk = true
		if ctx.ExistingAsk != nil && !contains(d.Cancels, ctx.ExistingAsk.Cloid) {
			d.Cancels = append(d.Cancels, ctx.ExistingAsk.Cloid)
		}
	} else if needAsk && !needBid {
		if ctx.ExistingBid != nil && ctx.ExistingBid.Source == order.SourcePreregistered {
			q.log.Debug("耦合：买侧仍在预注册，本周期整体跳过", zap.String("quoter", q.id))
			return Decision{Deferred: true}
		}
		needBid = true
		if ctx.ExistingBid != nil && !contains(d.Cancels, ctx.ExistingBid.Cloid) {
			d.Cancels = append(d.Cancels, ctx.ExistingBid.Cloid)
		}
	}

	if needBid && !ctx.StopBids {
		d.NewOrders = append(d.NewOrders, order.NewOrder{
			Cloid: MakeCloid("bid", q.id),
			Side:  order.SideBuy,
			Price: PriceFromEdge(bidEdge, order.SideBuy, ctx.ReferencePrice),
			Size:  q.quantity,
		})
	}
	if needAsk && !ctx.StopAsks {
		d.NewOrders = append(d.NewOrders, order.NewOrder{
			Cloid: MakeCloid("ask", q.id),
			Side:  order.SideSell,
			Price: PriceFromEdge(askEdge, order.SideSell, ctx.ReferencePrice),
			Size:  q.quantity,
		})
	}

	return d
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
