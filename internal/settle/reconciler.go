package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

// SettlementListener is notified exactly once per settled trade. The risk
// guard implements this to feed its circuit breaker and exposure books.
type SettlementListener interface {
	RecordSettlement(ctx context.Context, trade *domain.Trade, now time.Time)
}

// Config holds the reconciler settings.
type Config struct {
	Interval   time.Duration // How often to sweep pending trades, e.g. 5m
	Underlying string        // Symbol used to look up the settlement price, e.g. "BTCUSDT"
}

// Reconciler resolves pending trades against the exchange. It runs
// independently of the decision loop at a lower frequency.
type Reconciler struct {
	cfg      Config
	exchange ports.ExchangeClient
	feed     ports.PriceFeed
	repo     ports.TradeRepository
	ledger   ports.DecisionLedger
	listener SettlementListener
	logger   ports.Logger
	nowFn    func() time.Time
}

// New creates a settlement reconciler.
func New(cfg Config, exchange ports.ExchangeClient, feed ports.PriceFeed, repo ports.TradeRepository, ledger ports.DecisionLedger, listener SettlementListener, logger ports.Logger) (*Reconciler, error) {
	if exchange == nil || feed == nil || repo == nil || ledger == nil || listener == nil || logger == nil {
		return nil, fmt.Errorf("exchange, price feed, repository, ledger, listener and logger are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Underlying == "" {
		return nil, fmt.Errorf("underlying symbol is required")
	}
	return &Reconciler{
		cfg:      cfg,
		exchange: exchange,
		feed:     feed,
		repo:     repo,
		ledger:   ledger,
		listener: listener,
		logger:   logger,
		nowFn:    time.Now,
	}, nil
}

// Run sweeps pending trades on the configured interval until the context
// is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info(ctx, "settlement reconciler started", map[string]interface{}{"interval": r.cfg.Interval.String()})
	for {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "settlement reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				r.logger.Error(ctx, err, "settlement sweep failed")
			}
		}
	}
}

// ReconcileOnce resolves every pending trade whose market has settled.
// The projection update is the idempotency gate: a trade that is already
// settled is skipped without touching the ledger or the listener, so a
// duplicate settlement report is a no-op.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	pending, err := r.repo.FindPending(ctx)
	if err != nil {
		return fmt.Errorf("loading pending trades: %w", err)
	}

	for _, trade := range pending {
		if err := r.settleTrade(ctx, trade); err != nil {
			r.logger.Error(ctx, err, "failed to settle trade", map[string]interface{}{
				"tradeID": trade.ID,
				"ticker":  trade.Ticker,
			})
		}
	}
	return nil
}

func (r *Reconciler) settleTrade(ctx context.Context, trade *domain.Trade) error {
	res, err := r.exchange.GetSettlement(ctx, trade.Ticker)
	if err != nil {
		if errors.Is(err, ports.ErrMarketNotSettled) {
			return nil
		}
		return fmt.Errorf("querying settlement for %s: %w", trade.Ticker, err)
	}
	if !res.Settled {
		return nil
	}

	result := domain.ResultLost
	if res.Winner == trade.Side {
		result = domain.ResultWon
	}
	pnl := domain.SettlementPnLCents(result, trade.PriceCents, trade.Contracts)
	settledAt := res.SettledAt
	if settledAt.IsZero() {
		settledAt = r.nowFn()
	}

	// The exchange reports which side paid out but not the underlying
	// value it resolved against; the price feed fills that in. A failed
	// lookup leaves the trade pending so the next sweep retries.
	value := res.SettlementValue
	if value == 0 {
		value, err = r.feed.GetPriceAt(ctx, r.cfg.Underlying, settledAt)
		if err != nil {
			return fmt.Errorf("fetching settlement price for %s: %w", trade.Ticker, err)
		}
	}

	err = r.repo.MarkSettled(ctx, trade.ID, result, pnl, value, settledAt)
	if errors.Is(err, ports.ErrDuplicateEntry) {
		r.logger.Debug(ctx, "trade already settled, skipping", map[string]interface{}{"tradeID": trade.ID})
		return nil
	}
	if err != nil {
		return fmt.Errorf("marking trade %s settled: %w", trade.ID, err)
	}

	trade.Result = result
	trade.PnLCents = pnl
	trade.Settlement = value
	trade.SettledAt = &settledAt

	if err := r.ledger.AppendSettlement(ctx, trade); err != nil {
		// The projection already settled; losing the ledger line is worth
		// an error but must not block the remaining sweep.
		r.logger.Error(ctx, err, "failed to append settlement record", map[string]interface{}{"tradeID": trade.ID})
	}

	r.listener.RecordSettlement(ctx, trade, r.nowFn())

	r.logger.Info(ctx, "trade settled", map[string]interface{}{
		"tradeID":  trade.ID,
		"ticker":   trade.Ticker,
		"result":   result,
		"pnlCents": pnl,
	})
	return nil
}
