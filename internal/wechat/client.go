package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultBaseURL = "https://api.mch.weixin.qq.com"
	defaultTimeout = 5 * time.Second
)

// httpResult is what a gateway call yields once the transport succeeded.
// Definitive business errors are derived from it after the circuit
// breaker, so the breaker trips on transport failures only.
type httpResult struct {
	status int
	body   []byte
}

// Client issues the outbound gateway operations. CreateIntent is the only
// non-idempotent one; a timeout on it means "unknown outcome" and is
// resolved via Query, never by resending the same order number.
type Client struct {
	httpClient *http.Client
	baseURL    string
	signer     *RequestSigner
	appID      string
	mchID      string
	notifyURL  string
	breaker    *gobreaker.CircuitBreaker[*httpResult]
	metrics    *observability.Metrics
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the gateway endpoint (tests point it at a local
// server).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the transport. The client must carry a bounded
// timeout; a hung outbound call never holds a lock on an order record.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics enables gateway request and circuit breaker metrics.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a gateway client.
func NewClient(signer *RequestSigner, appID, mchID, notifyURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		signer:     signer,
		appID:      appID,
		mchID:      mchID,
		notifyURL:  notifyURL,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*httpResult](gobreaker.Settings{
		Name:        "wechat-pay",
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			}
		},
	})
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateIntentParams is the local-side input for creating a prepay
// session.
type CreateIntentParams struct {
	OrderNo     string
	AmountMinor int64
	Description string
	PayerOpenID string
	Attach      string
}

// CreateIntent creates a JSAPI prepay transaction and derives the
// payer-side authorization package from the returned prepay id.
func (c *Client) CreateIntent(ctx context.Context, p CreateIntentParams) (*PaySessionParams, error) {
	body, err := json.Marshal(CreateIntentRequest{
		AppID:       c.appID,
		MchID:       c.mchID,
		Description: p.Description,
		OutTradeNo:  p.OrderNo,
		NotifyURL:   c.notifyURL,
		Amount:      Amount{Total: p.AmountMinor, Currency: "CNY"},
		Payer:       Payer{OpenID: p.PayerOpenID},
		Attach:      p.Attach,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal create intent request: %w", err)
	}

	res, err := c.do(ctx, "create_intent", http.MethodPost, "/v3/pay/transactions/jsapi", body)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus("create_intent", res, http.StatusOK); err != nil {
		return nil, err
	}

	var reply createIntentResponse
	if err := json.Unmarshal(res.body, &reply); err != nil {
		return nil, fmt.Errorf("parse create intent response: %w", err)
	}
	if reply.PrepayID == "" {
		return nil, &domainErrors.GatewayError{Code: "MISSING_PREPAY_ID", Message: "gateway response carried no prepay_id"}
	}

	return c.signer.PaySessionParams(c.appID, reply.PrepayID)
}

// Query fetches the gateway's view of a transaction by merchant order
// number. It never mutates local state; callers decide whether to settle.
func (c *Client) Query(ctx context.Context, orderNo string) (*OrderStatusSnapshot, error) {
	path := fmt.Sprintf("/v3/pay/transactions/out-trade-no/%s?mchid=%s", url.PathEscape(orderNo), url.QueryEscape(c.mchID))

	res, err := c.do(ctx, "query", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus("query", res, http.StatusOK); err != nil {
		return nil, err
	}

	var snapshot OrderStatusSnapshot
	if err := json.Unmarshal(res.body, &snapshot); err != nil {
		return nil, fmt.Errorf("parse query response: %w", err)
	}
	return &snapshot, nil
}

// Close closes an unpaid transaction at the gateway. The gateway replies
// 204 on success.
func (c *Client) Close(ctx context.Context, orderNo string) error {
	body, err := json.Marshal(closeRequest{MchID: c.mchID})
	if err != nil {
		return fmt.Errorf("marshal close request: %w", err)
	}
	path := fmt.Sprintf("/v3/pay/transactions/out-trade-no/%s/close", url.PathEscape(orderNo))

	res, err := c.do(ctx, "close", http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.checkStatus("close", res, http.StatusNoContent)
}

// RefundParams is the local-side input for a refund.
type RefundParams struct {
	OrderNo     string
	RefundNo    string
	TotalMinor  int64
	RefundMinor int64
	Reason      string
}

// Refund requests a domestic refund for a paid transaction.
func (c *Client) Refund(ctx context.Context, p RefundParams) (*RefundResult, error) {
	body, err := json.Marshal(RefundRequest{
		OutTradeNo:  p.OrderNo,
		OutRefundNo: p.RefundNo,
		Reason:      p.Reason,
		Amount: RefundAmount{
			Refund:   p.RefundMinor,
			Total:    p.TotalMinor,
			Currency: "CNY",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal refund request: %w", err)
	}

	res, err := c.do(ctx, "refund", http.MethodPost, "/v3/refund/domestic/refunds", body)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus("refund", res, http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}

	var result RefundResult
	if err := json.Unmarshal(res.body, &result); err != nil {
		return nil, fmt.Errorf("parse refund response: %w", err)
	}
	return &result, nil
}

// do signs and executes one request through the circuit breaker.
// Transport failures surface as NetworkError.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (*httpResult, error) {
	auth, err := c.signer.Authorization(method, path, string(body))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (*httpResult, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", auth)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &httpResult{status: resp.StatusCode, body: raw}, nil
	})
	if c.metrics != nil {
		c.metrics.GatewayRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countRequest(op, "network_error")
		return nil, &domainErrors.NetworkError{Op: method + " " + path, Err: err}
	}
	return result, nil
}

// checkStatus maps non-expected statuses to GatewayError.
func (c *Client) checkStatus(op string, res *httpResult, expected ...int) error {
	for _, status := range expected {
		if res.status == status {
			c.countRequest(op, "ok")
			return nil
		}
	}
	c.countRequest(op, "gateway_error")

	var body gatewayErrorBody
	if err := json.Unmarshal(res.body, &body); err != nil || body.Code == "" {
		body.Code = fmt.Sprintf("HTTP_%d", res.status)
		body.Message = op + " rejected by gateway"
	}
	return &domainErrors.GatewayError{Code: body.Code, Message: body.Message}
}

func (c *Client) countRequest(op, result string) {
	if c.metrics != nil {
		c.metrics.GatewayRequestsTotal.WithLabelValues(op, result).Inc()
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
