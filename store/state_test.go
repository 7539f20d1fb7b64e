package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := SaveLedgerState(path, dec("123.45"), dec("-67.8")); err != nil {
		t.Fatalf("save: %v", err)
	}
	st, err := LoadLedgerState(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st == nil {
		t.Fatal("state should not be nil")
	}
	if !st.Position.Equal(dec("123.45")) {
		t.Fatalf("position = %s, want 123.45", st.Position)
	}
	if !st.QuoteFlow.Equal(dec("-67.8")) {
		t.Fatalf("quoteFlow = %s, want -67.8", st.QuoteFlow)
	}
}

func TestLoadMissingFileIsFirstRun(t *testing.T) {
	st, err := LoadLedgerState(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st != nil {
		t.Fatal("文件不存在应返回 nil（首次运行）")
	}
}

func TestLoadLegacyTotalPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	raw := `{"total_position": "150.5", "quote_position": "-10"}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := LoadLedgerState(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !st.Position.Equal(dec("150.5")) {
		t.Fatalf("position = %s, want 150.5", st.Position)
	}
}

func TestLoadLegacySplitPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	// 数字而非字符串的历史写法也要兼容
	raw := `{"start_position": 100, "current_position": "23.5"}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := LoadLedgerState(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !st.Position.Equal(dec("123.5")) {
		t.Fatalf("position = %s, want 123.5", st.Position)
	}
	if !st.QuoteFlow.IsZero() {
		t.Fatalf("quoteFlow = %s, want 0", st.QuoteFlow)
	}
}
