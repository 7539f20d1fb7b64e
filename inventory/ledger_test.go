package inventory

import (
	"testing"

	"github.com/shopspring/decimal"

	"mm-agent-go/order"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApplyFillBuySell(t *testing.T) {
	l := NewLedger(nil)

	l.ApplyFill(order.SideBuy, dec("10"), dec("2"))
	if !l.Position().Equal(dec("10")) {
		t.Fatalf("position = %s, want 10", l.Position())
	}
	if !l.QuoteFlow().Equal(dec("-20")) {
		t.Fatalf("quoteFlow = %s, want -20", l.QuoteFlow())
	}

	l.ApplyFill(order.SideSell, dec("4"), dec("3"))
	if !l.Position().Equal(dec("6")) {
		t.Fatalf("position = %s, want 6", l.Position())
	}
	if !l.QuoteFlow().Equal(dec("-8")) {
		t.Fatalf("quoteFlow = %s, want -8", l.QuoteFlow())
	}
}

func TestPnL(t *testing.T) {
	l := NewLedger(nil)
	l.ApplyFill(order.SideBuy, dec("10"), dec("2"))

	// -20 现金流 + 10 仓位 × 2.5 参考价 = 5
	if !l.PnL(dec("2.5")).Equal(dec("5")) {
		t.Fatalf("pnl = %s, want 5", l.PnL(dec("2.5")))
	}
}

func TestSeedAndSnapshot(t *testing.T) {
	l := NewLedger(nil)
	l.Seed(State{Position: dec("100"), QuoteFlow: dec("-50")})

	s := l.Snapshot()
	if !s.Position.Equal(dec("100")) || !s.QuoteFlow.Equal(dec("-50")) {
		t.Fatalf("snapshot = %+v", s)
	}
}

func TestPersisterCalledOnEveryFill(t *testing.T) {
	l := NewLedger(nil)
	var saved []State
	l.SetPersister(func(s State) error {
		saved = append(saved, s)
		return nil
	})

	l.ApplyFill(order.SideBuy, dec("1"), dec("10"))
	l.ApplyFill(order.SideSell, dec("1"), dec("11"))

	if len(saved) != 2 {
		t.Fatalf("persist calls = %d, want 2", len(saved))
	}
	if !saved[1].Position.IsZero() {
		t.Fatalf("final position = %s, want 0", saved[1].Position)
	}
	if !saved[1].QuoteFlow.Equal(dec("1")) {
		t.Fatalf("final quoteFlow = %s, want 1", saved[1].QuoteFlow)
	}
}
