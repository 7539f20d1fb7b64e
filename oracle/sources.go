package oracle

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// newClient resty 客户端，带短超时：取价失败只是跳过本周期，不值得久等。
func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(1)
}

// CoinbaseSource 从 Coinbase 现货价接口取参考价。
type CoinbaseSource struct {
	Symbol string // 交易对符号，如 "BTC-USD"
	client *resty.Client
}

func NewCoinbaseSource(symbol string) *CoinbaseSource {
	return &CoinbaseSource{
		Symbol: symbol,
		client: newClient("https://api.coinbase.com"),
	}
}

// SetBaseURL 仅供测试替换端点。
func (c *CoinbaseSource) SetBaseURL(u string) { c.client.SetBaseURL(u) }

type coinbaseSpotResponse struct {
	Data struct {
		Amount string `json:"amount"`
	} `json:"data"`
}

func (c *CoinbaseSource) Price(ctx context.Context, market string) (decimal.Decimal, bool) {
	var out coinbaseSpotResponse
	resp, err := c.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&out).
		Get("/v2/prices/" + c.Symbol + "/spot")
	if err != nil || resp.IsError() || out.Data.Amount == "" {
		return decimal.Zero, false
	}
	p, err := decimal.NewFromString(out.Data.Amount)
	if err != nil {
		return decimal.Zero, false
	}
	return p, true
}

// VenueSource 从交易所自己的行情接口取最新成交价。
type VenueSource struct {
	client *resty.Client
}

func NewVenueSource(baseURL string) *VenueSource {
	return &VenueSource{client: newClient(baseURL)}
}

func (v *VenueSource) SetBaseURL(u string) { v.client.SetBaseURL(u) }

type venuePriceResponse struct {
	Success bool   `json:"success"`
	Price   string `json:"price"`
}

func (v *VenueSource) Price(ctx context.Context, market string) (decimal.Decimal, bool) {
	var out venuePriceResponse
	resp, err := v.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&out).
		Get("/api/v2/markets/" + market + "/price")
	if err != nil || resp.IsError() || !out.Success || out.Price == "" {
		return decimal.Zero, false
	}
	p, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, false
	}
	return p, true
}
