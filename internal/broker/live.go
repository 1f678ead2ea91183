// Package broker - live.go implements a generic REST+webhook futures
// broker client. It targets the common shape real futures brokers
// expose (bearer-token REST for snapshots and order submission,
// webhook or websocket push for fills) rather than any single vendor's
// exact schema, so a production deployment swaps in vendor-specific
// request/response types without touching the Adapter contract.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

func init() {
	Registry["live"] = NewLiveBroker
}

// LiveConfig holds the REST client configuration for a live futures
// broker connection.
type LiveConfig struct {
	BaseURL     string `json:"base_url"`
	AccountID   string `json:"account_id"`
	APIKey      string `json:"api_key"`
	Symbol      string `json:"symbol"`
}

// LiveBroker talks to a futures broker's REST API for account/position
// snapshots and bracket-leg order submission. Fill/ack/reject events
// arrive out of band (webhook or websocket) and are injected via
// InjectAck/InjectFill/InjectReject by the transport that owns the
// inbound connection — this keeps the HTTP client itself synchronous
// and the event sink the single place callbacks fan out from.
type LiveBroker struct {
	cfg    LiveConfig
	client *http.Client

	mu        sync.Mutex
	connected bool
	sink      EventSink
}

// NewLiveBroker builds a LiveBroker from JSON config.
func NewLiveBroker(configJSON []byte) (Adapter, error) {
	var cfg LiveConfig
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return nil, fmt.Errorf("live broker: parse config: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("live broker: api_key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("live broker: base_url is required")
	}
	return &LiveBroker{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (l *LiveBroker) RegisterSink(sink EventSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// InjectAck/InjectFill/InjectReject let the inbound webhook or
// websocket handler (owned by the caller, not this file) hand events to
// the registered sink without this client needing to run its own
// listener goroutine.
func (l *LiveBroker) InjectAck(a Ack) {
	if s := l.currentSink(); s != nil {
		s.OnAck(a)
	}
}

func (l *LiveBroker) InjectFill(f Fill) {
	if s := l.currentSink(); s != nil {
		s.OnFill(f)
	}
}

func (l *LiveBroker) InjectReject(r Reject) {
	if s := l.currentSink(); s != nil {
		s.OnReject(r)
	}
}

func (l *LiveBroker) currentSink() EventSink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink
}

func (l *LiveBroker) Connect(ctx context.Context) error {
	if _, err := l.doRequest(ctx, http.MethodGet, "/v1/accounts/"+l.cfg.AccountID, nil); err != nil {
		return fmt.Errorf("live broker: connect: %w", err)
	}
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
	return nil
}

func (l *LiveBroker) Disconnect(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	if l.sink != nil {
		l.sink.OnDisconnect("manual disconnect")
	}
	return nil
}

func (l *LiveBroker) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

type liveAccountResp struct {
	EquityUSD      float64 `json:"equity_usd"`
	BuyingPowerUSD float64 `json:"buying_power_usd"`
	MarginUsedUSD  float64 `json:"margin_used_usd"`
}

func (l *LiveBroker) GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error) {
	body, err := l.doRequest(ctx, http.MethodGet, "/v1/accounts/"+l.cfg.AccountID, nil)
	if err != nil {
		return AccountSnapshot{}, fmt.Errorf("live broker GetAccountSnapshot: %w", err)
	}
	var r liveAccountResp
	if err := json.Unmarshal(body, &r); err != nil {
		return AccountSnapshot{}, fmt.Errorf("live broker GetAccountSnapshot: parse: %w", err)
	}
	return AccountSnapshot{EquityUSD: r.EquityUSD, BuyingPowerUSD: r.BuyingPowerUSD, MarginUsedUSD: r.MarginUsedUSD}, nil
}

type livePositionResp struct {
	Symbol   string  `json:"symbol"`
	Qty      int     `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

func (l *LiveBroker) GetPositionSnapshot(ctx context.Context) (map[string]PositionSnapshot, error) {
	body, err := l.doRequest(ctx, http.MethodGet, "/v1/accounts/"+l.cfg.AccountID+"/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("live broker GetPositionSnapshot: %w", err)
	}
	var rows []livePositionResp
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("live broker GetPositionSnapshot: parse: %w", err)
	}
	out := make(map[string]PositionSnapshot, len(rows))
	for _, r := range rows {
		out[r.Symbol] = PositionSnapshot{Qty: r.Qty, AvgPrice: r.AvgPrice}
	}
	return out, nil
}

type liveOpenOrderResp struct {
	BrokerOrderID string `json:"broker_order_id"`
	ClientOrderID string `json:"client_order_id"`
	State         string `json:"state"`
	Qty           int    `json:"qty"`
	FilledQty     int    `json:"filled_qty"`
	Side          string `json:"side"`
	Kind          string `json:"kind"`
}

func (l *LiveBroker) GetOpenOrdersSnapshot(ctx context.Context) ([]OpenOrderSnapshot, error) {
	body, err := l.doRequest(ctx, http.MethodGet, "/v1/accounts/"+l.cfg.AccountID+"/orders?state=open", nil)
	if err != nil {
		return nil, fmt.Errorf("live broker GetOpenOrdersSnapshot: %w", err)
	}
	var rows []liveOpenOrderResp
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("live broker GetOpenOrdersSnapshot: parse: %w", err)
	}
	out := make([]OpenOrderSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, OpenOrderSnapshot{
			BrokerOrderID: r.BrokerOrderID, ClientOrderID: r.ClientOrderID, State: r.State,
			Qty: r.Qty, FilledQty: r.FilledQty, Side: Side(r.Side), Kind: Kind(r.Kind),
		})
	}
	return out, nil
}

type liveOrderReq struct {
	ClientOrderID string  `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Kind          string  `json:"kind"`
	Qty           int     `json:"qty"`
	Price         float64 `json:"price,omitempty"`
	TTLSeconds    int     `json:"ttl_seconds,omitempty"`
}

func (l *LiveBroker) submitOrder(ctx context.Context, clientOrderID string, side Side, kind Kind, qty int, price float64, ttl time.Duration) error {
	req := liveOrderReq{
		ClientOrderID: clientOrderID,
		Symbol:        l.cfg.Symbol,
		Side:          string(side),
		Kind:          string(kind),
		Qty:           qty,
		Price:         price,
	}
	if ttl > 0 {
		req.TTLSeconds = int(ttl.Seconds())
	}
	if _, err := l.doRequest(ctx, http.MethodPost, "/v1/accounts/"+l.cfg.AccountID+"/orders", req); err != nil {
		return fmt.Errorf("live broker submit %s: %w", kind, err)
	}
	return nil
}

func (l *LiveBroker) SubmitLimitOrder(ctx context.Context, clientOrderID string, side Side, qty int, limitPrice float64, ttl time.Duration) error {
	return l.submitOrder(ctx, clientOrderID, side, KindLimit, qty, limitPrice, ttl)
}

func (l *LiveBroker) SubmitStopOrder(ctx context.Context, clientOrderID string, side Side, qty int, stopPrice float64) error {
	return l.submitOrder(ctx, clientOrderID, side, KindStop, qty, stopPrice, 0)
}

func (l *LiveBroker) SubmitTargetOrder(ctx context.Context, clientOrderID string, side Side, qty int, targetPrice float64) error {
	return l.submitOrder(ctx, clientOrderID, side, KindTarget, qty, targetPrice, 0)
}

func (l *LiveBroker) SubmitMarketFlatten(ctx context.Context, clientOrderID string, side Side, qty int) error {
	return l.submitOrder(ctx, clientOrderID, side, KindMarket, qty, 0, 0)
}

func (l *LiveBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if _, err := l.doRequest(ctx, http.MethodDelete, "/v1/accounts/"+l.cfg.AccountID+"/orders/"+brokerOrderID, nil); err != nil {
		return fmt.Errorf("live broker CancelOrder: %w", err)
	}
	return nil
}

type liveErrorResp struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (l *LiveBroker) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := l.cfg.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("authentication failed (401): api key may have expired")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode >= 400 {
		var apiErr liveErrorResp
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
			return nil, fmt.Errorf("broker API error %s: %s", apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("broker API error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
