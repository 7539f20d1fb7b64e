package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"mm-agent-go/order"
)

// RESTGateway 基于交易所 REST API 的 Gateway 实现。
type RESTGateway struct {
	client *resty.Client
}

// RESTConfig REST 网关配置。
type RESTConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

func NewRESTGateway(cfg RESTConfig) *RESTGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("X-API-Key", cfg.APIKey).
		SetHeader("X-API-Secret", cfg.APISecret)
	return &RESTGateway{client: client}
}

// request 统一请求构造。响应一律按 JSON 解析，
// 不依赖交易所返回正确的 Content-Type 头。
func (g *RESTGateway) request(ctx context.Context) *resty.Request {
	return g.client.R().
		SetContext(ctx).
		ForceContentType("application/json")
}

// classify 把 HTTP 层结果翻译成错误分类。
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}
	if !resp.IsError() {
		return nil
	}
	code := resp.StatusCode()
	switch {
	case code == 401 || code == 403:
		return &Error{Kind: KindAuthorization, Op: op, Err: fmt.Errorf("HTTP %d: %s", code, resp.String())}
	case code == 400 || code == 422:
		return &Error{Kind: KindOrderRejected, Op: op, Err: fmt.Errorf("HTTP %d: %s", code, resp.String())}
	case code == 429 || code >= 500:
		return &Error{Kind: KindTransient, Op: op, Err: fmt.Errorf("HTTP %d", code)}
	default:
		return &Error{Kind: KindTransaction, Op: op, Err: fmt.Errorf("HTTP %d: %s", code, resp.String())}
	}
}

type batchOrderPayload struct {
	Cloid string `json:"cloid"`
	Type  string `json:"type"` // "limit" 或 "cancel"
	Side  string `json:"side,omitempty"`
	Price string `json:"price,omitempty"`
	Size  string `json:"size,omitempty"`
}

type batchResponse struct {
	TxRef string `json:"tx_ref"`
}

func (g *RESTGateway) SubmitBatch(ctx context.Context, cancels []string, newOrders []order.NewOrder) (string, error) {
	payload := make([]batchOrderPayload, 0, len(cancels)+len(newOrders))
	for _, cloid := range cancels {
		payload = append(payload, batchOrderPayload{Cloid: cloid, Type: "cancel"})
	}
	for _, o := range newOrders {
		side := "buy"
		if o.Side == order.SideSell {
			side = "sell"
		}
		payload = append(payload, batchOrderPayload{
			Cloid: o.Cloid,
			Type:  "limit",
			Side:  side,
			Price: o.Price.String(),
			Size:  o.Size.String(),
		})
	}

	var out batchResponse
	resp, err := g.request(ctx).
		SetBody(map[string]any{"orders": payload}).
		SetResult(&out).
		Post("/api/v2/orders/batch")
	if cerr := classify("submit_batch", resp, err); cerr != nil {
		return "", cerr
	}
	return out.TxRef, nil
}

type openOrderPayload struct {
	OrderID int64  `json:"orderid"`
	IsBuy   bool   `json:"isbuy"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

func (g *RESTGateway) OpenOrders(ctx context.Context, market string) ([]order.VenueOrder, error) {
	var out struct {
		Orders []openOrderPayload `json:"orders"`
	}
	resp, err := g.request(ctx).
		SetResult(&out).
		Get("/api/v2/markets/" + market + "/orders")
	if cerr := classify("open_orders", resp, err); cerr != nil {
		return nil, cerr
	}

	result := make([]order.VenueOrder, 0, len(out.Orders))
	for _, o := range out.Orders {
		price, perr := decimal.NewFromString(o.Price)
		size, serr := decimal.NewFromString(o.Size)
		if perr != nil || serr != nil {
			continue // 畸形行跳过，不让单行坏数据毁掉整个快照
		}
		side := order.SideSell
		if o.IsBuy {
			side = order.SideBuy
		}
		result = append(result, order.VenueOrder{
			VenueID: o.OrderID,
			Side:    side,
			Price:   price,
			Size:    size,
		})
	}
	return result, nil
}

func (g *RESTGateway) FreeBalances(ctx context.Context, account string) (decimal.Decimal, decimal.Decimal, error) {
	var out struct {
		Base  string `json:"base"`
		Quote string `json:"quote"`
	}
	resp, err := g.request(ctx).
		SetResult(&out).
		Get("/api/v2/accounts/" + account + "/balances")
	if cerr := classify("free_balances", resp, err); cerr != nil {
		return decimal.Zero, decimal.Zero, cerr
	}
	base, err := decimal.NewFromString(out.Base)
	if err != nil {
		return decimal.Zero, decimal.Zero, &Error{Kind: KindTransaction, Op: "free_balances", Err: err}
	}
	quote, err := decimal.NewFromString(out.Quote)
	if err != nil {
		return decimal.Zero, decimal.Zero, &Error{Kind: KindTransaction, Op: "free_balances", Err: err}
	}
	return base, quote, nil
}

func (g *RESTGateway) CancelAll(ctx context.Context, market string) error {
	resp, err := g.request(ctx).
		Delete("/api/v2/markets/" + market + "/orders")
	return classify("cancel_all", resp, err)
}

func (g *RESTGateway) Sequence(ctx context.Context) (int64, error) {
	var out struct {
		Sequence int64 `json:"sequence"`
	}
	resp, err := g.request(ctx).
		SetResult(&out).
		Get("/api/v2/sequence")
	if cerr := classify("sequence", resp, err); cerr != nil {
		return 0, cerr
	}
	return out.Sequence, nil
}
