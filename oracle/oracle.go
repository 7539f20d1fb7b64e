// Package oracle 提供参考价服务。价格不可用是正常情况：
// 调用方必须按"跳过本周期"处理，绝不能当作零价或撤单理由。
package oracle

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// PriceSource 单一价格来源。价格不可用时 ok 返回 false。
type PriceSource interface {
	Price(ctx context.Context, market string) (price decimal.Decimal, ok bool)
}

// Service 管理多个命名价格来源。
type Service struct {
	mu      sync.RWMutex
	sources map[string]PriceSource
}

func NewService() *Service {
	return &Service{sources: make(map[string]PriceSource)}
}

// AddSource 注册价格来源。
func (s *Service) AddSource(name string, src PriceSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[name] = src
}

// Price 从指定来源取价。
func (s *Service) Price(ctx context.Context, market, sourceName string) (decimal.Decimal, bool) {
	s.mu.RLock()
	src, ok := s.sources[sourceName]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, false
	}
	return src.Price(ctx, market)
}

// AveragePrice 所有可用来源的均价；没有任何来源可用时返回 false。
func (s *Service) AveragePrice(ctx context.Context, market string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	n := 0
	for _, src := range s.sources {
		if p, ok := src.Price(ctx, market); ok {
			sum = sum.Add(p)
			n++
		}
	}
	if n == 0 {
		return decimal.Zero, false
	}
	return sum.Div(decimal.NewFromInt(int64(n))), true
}
