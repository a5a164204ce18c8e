package ports

import (
	"context"
	"time"

	"kalshiEdgeBot/internal/domain"
)

// SettlementResult is the exchange's resolution of an expired market.
type SettlementResult struct {
	Ticker          string
	Settled         bool        // False while the market is still open or unresolved
	Winner          domain.Side // Which side paid out
	SettlementValue float64     // Underlying value the market settled against, 0 when the venue does not report it
	SettledAt       time.Time
}

// ExchangeClient is the interface to the prediction-market exchange.
// All methods honour the passed context for cancellation and deadlines.
type ExchangeClient interface {
	// GetBalance retrieves the available account balance in cents.
	GetBalance(ctx context.Context) (int64, error)

	// ListMarkets retrieves open markets for a series (e.g. hourly BTC
	// threshold contracts), as snapshots stamped with the capture time.
	ListMarkets(ctx context.Context, seriesTicker string) ([]*domain.MarketSnapshot, error)

	// GetMarket retrieves a fresh snapshot of a single market.
	GetMarket(ctx context.Context, ticker string) (*domain.MarketSnapshot, error)

	// PlaceOrder submits a limit order. A rejection by the exchange is
	// returned as an OrderResult with the exchange's wording, not as an
	// error; errors indicate transport or authentication failures.
	PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderResult, error)

	// GetSettlement retrieves the resolution of a market. Settled is false
	// in the result when the market has not resolved yet.
	GetSettlement(ctx context.Context, ticker string) (*SettlementResult, error)

	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error
}

// PriceFeed supplies the underlying price series that signals are
// estimated from.
type PriceFeed interface {
	// GetSpotPrice retrieves the current spot price of the underlying.
	GetSpotPrice(ctx context.Context, symbol string) (float64, error)

	// GetKlines retrieves the most recent candles for the underlying,
	// oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)

	// GetPriceAt retrieves the historical price of the underlying at the
	// given instant, from the minute candle covering it.
	GetPriceAt(ctx context.Context, symbol string, at time.Time) (float64, error)
}
