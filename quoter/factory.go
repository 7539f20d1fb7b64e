package quoter

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 报价器类型的封闭集合，由配置选择。
const (
	TypeSkew          = "skew"
	TypeAlwaysReplace = "always_replace"
)

// FactoryParams 从配置映射来的构建参数。
type FactoryParams struct {
	Type                string
	QuotersBps          []decimal.Decimal // 每个元素一个报价层级
	Quantity            decimal.Decimal
	QuantityBpsPerLevel *decimal.Decimal // 设置后覆盖 Quantity：maxPosition × bps / 10000
	MaxPosition         decimal.Decimal
	EntrySkew           decimal.Decimal
	ExitSkew            decimal.Decimal
}

// Build 按配置构建全部报价层级。未知类型返回错误（不做反射查表）。
func Build(p FactoryParams, log *zap.Logger) ([]Quoter, error) {
	if len(p.QuotersBps) == 0 {
		return nil, fmt.Errorf("no quoter levels configured")
	}

	quoters := make([]Quoter, 0, len(p.QuotersBps))
	for _, edgeBps := range p.QuotersBps {
		quantity := p.Quantity
		if p.QuantityBpsPerLevel != nil {
			quantity = p.MaxPosition.Mul(*p.QuantityBpsPerLevel).Div(decimal.NewFromInt(10000))
		}

		switch p.Type {
		case TypeSkew, "":
			quoters = append(quoters, NewSkewQuoter(SkewParams{
				BaselineEdgeBps: edgeBps,
				Quantity:        quantity,
				EntrySkew:       p.EntrySkew,
				ExitSkew:        p.ExitSkew,
			}, log))
		case TypeAlwaysReplace:
			quoters = append(quoters, NewAlwaysReplaceQuoter(edgeBps, quantity))
		default:
			return nil, fmt.Errorf("unknown quoter type %q", p.Type)
		}
	}
	return quoters, nil
}
