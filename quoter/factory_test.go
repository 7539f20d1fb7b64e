package quoter

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBuildSkewLevels(t *testing.T) {
	quoters, err := Build(FactoryParams{
		Type:        TypeSkew,
		QuotersBps:  []decimal.Decimal{dec("30"), dec("50"), dec("80")},
		Quantity:    dec("10"),
		MaxPosition: dec("1000"),
		EntrySkew:   dec("0.5"),
		ExitSkew:    dec("0.5"),
	}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(quoters) != 3 {
		t.Fatalf("quoters = %d, want 3", len(quoters))
	}
	for _, q := range quoters {
		if !q.Quantity().Equal(dec("10")) {
			t.Fatalf("quantity = %s, want 10", q.Quantity())
		}
	}
}

func TestBuildQuantityBpsOverride(t *testing.T) {
	bps := dec("20")
	quoters, err := Build(FactoryParams{
		Type:                TypeSkew,
		QuotersBps:          []decimal.Decimal{dec("50")},
		Quantity:            dec("10"),
		QuantityBpsPerLevel: &bps,
		MaxPosition:         dec("1000"),
	}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// 1000 × 20 / 10000 = 2
	if !quoters[0].Quantity().Equal(dec("2")) {
		t.Fatalf("quantity = %s, want 2", quoters[0].Quantity())
	}
}

func TestBuildAlwaysReplace(t *testing.T) {
	quoters, err := Build(FactoryParams{
		Type:       TypeAlwaysReplace,
		QuotersBps: []decimal.Decimal{dec("50")},
		Quantity:   dec("10"),
	}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if quoters[0].ID() != "always-50" {
		t.Fatalf("id = %s, want always-50", quoters[0].ID())
	}
}

func TestBuildRejectsUnknownType(t *testing.T) {
	_, err := Build(FactoryParams{
		Type:       "martingale",
		QuotersBps: []decimal.Decimal{dec("50")},
		Quantity:   dec("10"),
	}, nil)
	if err == nil {
		t.Fatal("未知类型应报错")
	}
}

func TestBuildRejectsEmptyLevels(t *testing.T) {
	_, err := Build(FactoryParams{Type: TypeSkew, Quantity: dec("10")}, nil)
	if err == nil {
		t.Fatal("空层级应报错")
	}
}
