package binancefeed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

// Feed implements ports.PriceFeed using Binance spot market data. Only
// public endpoints are used; no credentials are required.
type Feed struct {
	client *binance.Client
	logger ports.Logger
}

// Config holds configuration for the Binance feed adapter.
type Config struct {
	Logger ports.Logger
}

// New creates a Binance price feed.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance feed")
	}
	return &Feed{
		client: binance.NewClient("", ""),
		logger: cfg.Logger,
	}, nil
}

// GetSpotPrice retrieves the current spot price of the underlying.
func (f *Feed) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, f.handleError(ctx, err, "GetSpotPrice", symbol)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: no price for symbol %s", ports.ErrNotFound, symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing price %q for %s: %w", prices[0].Price, symbol, err)
	}
	return price, nil
}

// GetKlines retrieves the most recent candles for the underlying, oldest
// first, as the estimator expects.
func (f *Feed) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	raw, err := f.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, f.handleError(ctx, err, "GetKlines", symbol)
	}

	klines := make([]domain.Kline, 0, len(raw))
	for _, k := range raw {
		kline, err := toDomainKline(k, symbol, interval)
		if err != nil {
			f.logger.Warn(ctx, "skipping unparseable kline", map[string]interface{}{
				"symbol": symbol,
				"error":  err.Error(),
			})
			continue
		}
		klines = append(klines, kline)
	}
	return klines, nil
}

// GetPriceAt retrieves the close of the minute candle covering the given
// instant. Settlement reconciliation uses it to record the underlying
// value a market resolved against.
func (f *Feed) GetPriceAt(ctx context.Context, symbol string, at time.Time) (float64, error) {
	start := at.Truncate(time.Minute)
	raw, err := f.client.NewKlinesService().
		Symbol(symbol).
		Interval("1m").
		StartTime(start.UnixMilli()).
		EndTime(start.Add(time.Minute).UnixMilli() - 1).
		Limit(1).
		Do(ctx)
	if err != nil {
		return 0, f.handleError(ctx, err, "GetPriceAt", symbol)
	}
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w: no candle for %s at %s", ports.ErrNotFound, symbol, at.UTC().Format(time.RFC3339))
	}

	price, err := strconv.ParseFloat(raw[0].Close, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing close %q for %s: %w", raw[0].Close, symbol, err)
	}
	return price, nil
}

// handleError translates Binance API errors into standardized ports errors.
func (f *Feed) handleError(ctx context.Context, err error, operation, symbol string) error {
	fields := map[string]interface{}{"operation": operation, "symbol": symbol, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		var mapped error
		switch apiErr.Code {
		case -1003:
			mapped = ports.ErrRateLimited
		case -1121:
			mapped = ports.ErrInvalidRequest
		default:
			mapped = ports.ErrExchangeUnavailable
		}
		f.logger.Error(ctx, err, "Binance API error", fields)
		return fmt.Errorf("%w: %s failed for %s: %v", mapped, operation, symbol, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s for %s", ports.ErrTimeout, operation, symbol)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s for %s", ports.ErrContextCanceled, operation, symbol)
	}

	f.logger.Error(ctx, err, "Binance request failed", fields)
	return fmt.Errorf("%s failed for %s: %w", operation, symbol, err)
}

func toDomainKline(k *binance.Kline, symbol, interval string) (domain.Kline, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return domain.Kline{}, fmt.Errorf("parse open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return domain.Kline{}, fmt.Errorf("parse high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return domain.Kline{}, fmt.Errorf("parse low %q: %w", k.Low, err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return domain.Kline{}, fmt.Errorf("parse close %q: %w", k.Close, err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return domain.Kline{}, fmt.Errorf("parse volume %q: %w", k.Volume, err)
	}

	return domain.Kline{
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}
