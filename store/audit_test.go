package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAuditAppendAndCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	a, err := OpenAuditLog(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	rec := AuditRecord{
		Timestamp:       time.Now(),
		Sequence:        7,
		FreeBase:        dec("60"),
		LockedBase:      dec("40"),
		TotalBase:       dec("100"),
		FreeQuote:       dec("500"),
		LockedQuote:     dec("0"),
		TotalQuote:      dec("500"),
		TrackedPosition: dec("90"),
		Drift:           dec("10"),
		OpenOrders:      2,
		ReferencePrice:  dec("2.5"),
		HasReference:    true,
	}
	if err := a.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	// 参考价不可用时写 NULL
	rec.HasReference = false
	if err := a.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	n, err := a.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}
