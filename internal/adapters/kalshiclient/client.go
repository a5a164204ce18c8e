package kalshiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

const (
	defaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

	// Documented limits are 10 reads/s and 5 writes/s for basic access;
	// run at 80% of that.
	readRatePerSec  = 8
	writeRatePerSec = 4
)

// Client implements ports.ExchangeClient against the Kalshi REST API.
// Every request is signed fresh so retries elsewhere never reuse a stale
// timestamp.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	signer       *Signer
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
	logger       ports.Logger
}

// Config holds configuration for the Kalshi client adapter.
type Config struct {
	BaseURL       string
	APIKeyID      string
	PrivateKeyPEM []byte
	Logger        ports.Logger
}

// New creates a Kalshi client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Kalshi client")
	}
	signer, err := NewSigner(cfg.APIKeyID, cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("configuring request signer: %w", err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		signer:       signer,
		readLimiter:  rate.NewLimiter(readRatePerSec, 10),
		writeLimiter: rate.NewLimiter(writeRatePerSec, 5),
		logger:       cfg.Logger,
	}, nil
}

// --- wire types ---

type marketResponse struct {
	Ticker         string  `json:"ticker"`
	Status         string  `json:"status"`
	YesBid         int64   `json:"yes_bid"`
	YesAsk         int64   `json:"yes_ask"`
	FloorStrike    float64 `json:"floor_strike"`
	CapStrike      float64 `json:"cap_strike"`
	ExpirationTime string  `json:"expiration_time"`
	Result         string  `json:"result"`
	SettledTime    string  `json:"settled_time"`
}

type orderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
	YesPrice      int64  `json:"yes_price,omitempty"`
	NoPrice       int64  `json:"no_price,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetBalance retrieves the available account balance in cents.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, nil, &resp); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return resp.Balance, nil
}

// ListMarkets retrieves open markets for a series as capture-stamped
// snapshots. The underlying spot price is filled in by the caller; this
// client only knows the contract side of the world.
func (c *Client) ListMarkets(ctx context.Context, seriesTicker string) ([]*domain.MarketSnapshot, error) {
	params := url.Values{}
	params.Set("series_ticker", seriesTicker)
	params.Set("status", "open")
	params.Set("limit", "100")

	var resp struct {
		Markets []marketResponse `json:"markets"`
	}
	if err := c.do(ctx, http.MethodGet, "/markets", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("list markets for %s: %w", seriesTicker, err)
	}

	now := time.Now()
	snapshots := make([]*domain.MarketSnapshot, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		snap, err := toSnapshot(m, now)
		if err != nil {
			c.logger.Warn(ctx, "skipping unparseable market", map[string]interface{}{
				"ticker": m.Ticker,
				"error":  err.Error(),
			})
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// GetMarket retrieves a fresh snapshot of a single market.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*domain.MarketSnapshot, error) {
	var resp struct {
		Market marketResponse `json:"market"`
	}
	path := "/markets/" + url.PathEscape(ticker)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get market %s: %w", ticker, err)
	}
	return toSnapshot(resp.Market, time.Now())
}

// PlaceOrder submits a limit buy order. An exchange-side rejection comes
// back as a rejected OrderResult with the exchange wording preserved.
func (c *Client) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderResult, error) {
	req := orderRequest{
		Ticker:        order.Ticker,
		ClientOrderID: uuid.NewString(),
		Action:        "buy",
		Side:          string(order.Side),
		Count:         order.Contracts,
		Type:          "limit",
	}
	if order.Side == domain.SideYes {
		req.YesPrice = order.PriceCents
	} else {
		req.NoPrice = order.PriceCents
	}

	var resp struct {
		Order struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		} `json:"order"`
	}
	err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, req, &resp)
	if err != nil {
		var rejection *orderRejectedError
		if errors.As(err, &rejection) {
			return &domain.OrderResult{
				Status:       domain.OrderRejected,
				RejectReason: rejection.message,
			}, nil
		}
		return nil, fmt.Errorf("place order for %s: %w", order.Ticker, err)
	}

	if resp.Order.Status == "canceled" {
		return &domain.OrderResult{
			Status:       domain.OrderRejected,
			RejectReason: "order immediately canceled by exchange",
		}, nil
	}
	return &domain.OrderResult{
		Status:          domain.OrderAccepted,
		ExchangeOrderID: resp.Order.OrderID,
	}, nil
}

// GetSettlement retrieves the resolution of a market. An unsettled
// market reports Settled false rather than an error. The market object
// does not carry the underlying value it settled against, so
// SettlementValue stays zero and the caller looks it up from the price
// feed.
func (c *Client) GetSettlement(ctx context.Context, ticker string) (*ports.SettlementResult, error) {
	var resp struct {
		Market marketResponse `json:"market"`
	}
	path := "/markets/" + url.PathEscape(ticker)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("get settlement for %s: %w", ticker, err)
	}

	m := resp.Market
	if m.Result != "yes" && m.Result != "no" {
		return &ports.SettlementResult{Ticker: ticker, Settled: false}, nil
	}

	res := &ports.SettlementResult{
		Ticker:  ticker,
		Settled: true,
		Winner:  domain.Side(m.Result),
	}
	if m.SettledTime != "" {
		if t, err := time.Parse(time.RFC3339, m.SettledTime); err == nil {
			res.SettledAt = t
		}
	}
	return res, nil
}

// Ping checks connectivity via the exchange status endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		ExchangeActive bool `json:"exchange_active"`
	}
	if err := c.do(ctx, http.MethodGet, "/exchange/status", nil, nil, &resp); err != nil {
		return fmt.Errorf("ping exchange: %w", err)
	}
	return nil
}

// --- internals ---

// orderRejectedError carries a 4xx order rejection through the generic
// request path so PlaceOrder can turn it into a result.
type orderRejectedError struct {
	message string
}

func (e *orderRejectedError) Error() string { return e.message }

func (c *Client) do(ctx context.Context, method, path string, params url.Values, reqBody, out interface{}) error {
	limiter := c.readLimiter
	if method != http.MethodGet {
		limiter = c.writeLimiter
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// The signed path carries the API prefix but not the query string.
	signPath := "/trade-api/v2" + path
	if err := c.signer.SignRequest(req, method, signPath, time.Now()); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
		}
		return fmt.Errorf("%w: %v", ports.ErrTimeout, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(method, path, resp.StatusCode, respBody); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) checkStatus(method, path string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	detail := apiErr.Message
	if detail == "" {
		detail = string(body)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", ports.ErrAuthenticationFailed, detail, apiErr.Code)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ports.ErrRateLimited, detail)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ports.ErrMarketNotFound, method, path)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ports.ErrExchangeUnavailable, statusCode, detail)
	case method == http.MethodPost && path == "/portfolio/orders":
		// A 4xx on order placement is the exchange refusing the order;
		// preserve its wording for the ledger.
		return &orderRejectedError{message: fmt.Sprintf("%s (%s)", detail, apiErr.Code)}
	default:
		return fmt.Errorf("%w: HTTP %d: %s", ports.ErrInvalidRequest, statusCode, detail)
	}
}

func toSnapshot(m marketResponse, now time.Time) (*domain.MarketSnapshot, error) {
	expiry, err := time.Parse(time.RFC3339, m.ExpirationTime)
	if err != nil {
		return nil, fmt.Errorf("parse expiration time %q: %w", m.ExpirationTime, err)
	}
	strike := m.FloorStrike
	if strike == 0 {
		strike = m.CapStrike
	}
	return &domain.MarketSnapshot{
		Ticker:      m.Ticker,
		Strike:      strike,
		YesBidCents: m.YesBid,
		YesAskCents: m.YesAsk,
		ExpiryTime:  expiry,
		CapturedAt:  now,
	}, nil
}
