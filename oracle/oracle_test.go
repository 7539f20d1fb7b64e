package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

// fixedSource 返回固定价格
type fixedSource struct {
	price decimal.Decimal
	ok    bool
}

func (f fixedSource) Price(ctx context.Context, market string) (decimal.Decimal, bool) {
	return f.price, f.ok
}

func TestServicePriceByName(t *testing.T) {
	svc := NewService()
	svc.AddSource("a", fixedSource{price: decimal.NewFromInt(2), ok: true})

	p, ok := svc.Price(context.Background(), "DOGE-PERP", "a")
	if !ok || !p.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("price = %s ok=%v", p, ok)
	}
	if _, ok := svc.Price(context.Background(), "DOGE-PERP", "missing"); ok {
		t.Fatal("未注册来源不应可用")
	}
}

func TestAveragePriceSkipsUnavailable(t *testing.T) {
	svc := NewService()
	svc.AddSource("a", fixedSource{price: decimal.NewFromInt(2), ok: true})
	svc.AddSource("b", fixedSource{price: decimal.NewFromInt(4), ok: true})
	svc.AddSource("c", fixedSource{ok: false})

	p, ok := svc.AveragePrice(context.Background(), "DOGE-PERP")
	if !ok || !p.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("average = %s ok=%v, want 3", p, ok)
	}
}

func TestAveragePriceAllUnavailable(t *testing.T) {
	svc := NewService()
	svc.AddSource("a", fixedSource{ok: false})
	if _, ok := svc.AveragePrice(context.Background(), "DOGE-PERP"); ok {
		t.Fatal("全部来源不可用时应返回 false")
	}
}

func TestCoinbaseSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/prices/DOGE-USD/spot" {
			w.WriteHeader(404)
			return
		}
		w.Write([]byte(`{"data":{"amount":"0.2345"}}`))
	}))
	defer srv.Close()

	src := NewCoinbaseSource("DOGE-USD")
	src.SetBaseURL(srv.URL)

	p, ok := src.Price(context.Background(), "DOGE-PERP")
	if !ok || p.String() != "0.2345" {
		t.Fatalf("price = %s ok=%v", p, ok)
	}
}

func TestVenueSourceUnavailableOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	src := NewVenueSource(srv.URL)
	if _, ok := src.Price(context.Background(), "DOGE-PERP"); ok {
		t.Fatal("success=false 时价格应不可用")
	}
}
