package inventory

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mm-agent-go/order"
)

// State 账本的可持久化标量状态。
type State struct {
	Position  decimal.Decimal
	QuoteFlow decimal.Decimal
}

// Persister 每次账本变更后被调用；实现由 store 包提供。
type Persister func(State) error

// Ledger 仓位账本：净 base 仓位与累计 quote 现金流。
// 唯一的变更路径是 ApplyFill（由 Registry 在成交归属后调用），
// 买入加仓位减现金流，卖出反之。
type Ledger struct {
	mu        sync.RWMutex
	position  decimal.Decimal // 净 base 仓位（启动以来所有成交的净额）
	quoteFlow decimal.Decimal // 负=支出，正=收入
	persist   Persister
	log       *zap.Logger
}

func NewLedger(log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{log: log}
}

// Seed 启动时注入初始状态（持久化状态 > 配置覆盖 > 零）。
func (l *Ledger) Seed(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = s.Position
	l.quoteFlow = s.QuoteFlow
}

// SetPersister 注册持久化回调。
func (l *Ledger) SetPersister(p Persister) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.persist = p
}

// ApplyFill 按确认成交更新账本并触发持久化。
func (l *Ledger) ApplyFill(side order.Side, filled, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	notional := filled.Mul(price)
	if side == order.SideBuy {
		l.position = l.position.Add(filled)
		l.quoteFlow = l.quoteFlow.Sub(notional)
	} else {
		l.position = l.position.Sub(filled)
		l.quoteFlow = l.quoteFlow.Add(notional)
	}

	l.log.Info("仓位更新",
		zap.String("side", string(side)),
		zap.String("filled", filled.String()),
		zap.String("price", price.String()),
		zap.String("position", l.position.String()))

	if l.persist != nil {
		if err := l.persist(State{Position: l.position, QuoteFlow: l.quoteFlow}); err != nil {
			l.log.Error("账本状态持久化失败", zap.Error(err))
		}
	}
}

// Position 当前净仓位。
func (l *Ledger) Position() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.position
}

// QuoteFlow 累计 quote 现金流。
func (l *Ledger) QuoteFlow() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quoteFlow
}

// Snapshot 原子读取完整状态。
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return State{Position: l.position, QuoteFlow: l.quoteFlow}
}

// PnL 按参考价估值的盈亏：现金流 + 仓位 × 参考价。
func (l *Ledger) PnL(referencePrice decimal.Decimal) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.quoteFlow.Add(l.position.Mul(referencePrice))
}
