package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/edge"
	"kalshiEdgeBot/internal/executor"
	"kalshiEdgeBot/internal/ports"
	"kalshiEdgeBot/internal/risk"
	"kalshiEdgeBot/internal/signal"
	"kalshiEdgeBot/internal/sizing"
)

// Config holds the engine loop settings.
type Config struct {
	SeriesTicker  string        // Contract series to scan, e.g. "KXBTCD"
	Underlying    string        // Underlying symbol, e.g. "BTCUSDT"
	KlineInterval string        // Candle interval for the price window, e.g. "1h"
	KlineLimit    int           // Candles to fetch per cycle, e.g. 48
	CycleInterval time.Duration // Time between evaluation cycles
	MaxConcurrent int           // Concurrent market evaluations per cycle
	Sentiment     float64       // External sentiment bias in [-1, 1] fed to the model
	DryRun        bool          // Log would-be orders without submitting
}

// Engine runs the evaluation loop: every cycle it fetches account and
// underlying state once, then pushes each open market through the
// decision pipeline with bounded concurrency.
type Engine struct {
	cfg       Config
	logger    ports.Logger
	exchange  ports.ExchangeClient
	feed      ports.PriceFeed
	estimator *signal.Estimator
	calc      *edge.Calculator
	sizer     *sizing.Sizer
	guard     *risk.Guard
	exec      *executor.Executor
	repo      ports.TradeRepository
	ledger    ports.DecisionLedger

	mu          sync.Mutex
	lastBalance int64
	nowFn       func() time.Time
}

// New creates the engine. All collaborators are required.
func New(cfg Config, logger ports.Logger, exchange ports.ExchangeClient, feed ports.PriceFeed,
	estimator *signal.Estimator, calc *edge.Calculator, sizer *sizing.Sizer,
	guard *risk.Guard, exec *executor.Executor, repo ports.TradeRepository, ledger ports.DecisionLedger) (*Engine, error) {

	if logger == nil || exchange == nil || feed == nil || estimator == nil || calc == nil ||
		sizer == nil || guard == nil || exec == nil || repo == nil || ledger == nil {
		return nil, fmt.Errorf("all engine collaborators are required")
	}
	if cfg.SeriesTicker == "" || cfg.Underlying == "" {
		return nil, fmt.Errorf("series ticker and underlying symbol are required")
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1h"
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 48
	}
	if cfg.Sentiment < -1 || cfg.Sentiment > 1 {
		return nil, fmt.Errorf("sentiment bias %v out of range [-1, 1]", cfg.Sentiment)
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		exchange:  exchange,
		feed:      feed,
		estimator: estimator,
		calc:      calc,
		sizer:     sizer,
		guard:     guard,
		exec:      exec,
		repo:      repo,
		ledger:    ledger,
		nowFn:     time.Now,
	}, nil
}

// Start runs evaluation cycles until the context is cancelled. The daily
// PnL accumulator resets when the UTC day rolls over.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info(ctx, "engine started", map[string]interface{}{
		"series":   e.cfg.SeriesTicker,
		"interval": e.cfg.CycleInterval.String(),
		"dryRun":   e.cfg.DryRun,
	})

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	currentDay := e.nowFn().UTC().Format("2006-01-02")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "engine stopped")
			return ctx.Err()
		case <-ticker.C:
			if day := e.nowFn().UTC().Format("2006-01-02"); day != currentDay {
				currentDay = day
				e.guard.ResetDaily(e.nowFn())
				e.logger.Info(ctx, "daily risk counters reset", map[string]interface{}{"day": day})
			}
			if err := e.RunCycle(ctx); err != nil {
				e.logger.Error(ctx, err, "evaluation cycle failed")
			}
		}
	}
}

// RunCycle evaluates every open market of the series once.
func (e *Engine) RunCycle(ctx context.Context) error {
	balance, err := e.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetching balance: %w", err)
	}
	e.mu.Lock()
	e.lastBalance = balance
	e.mu.Unlock()

	spot, err := e.feed.GetSpotPrice(ctx, e.cfg.Underlying)
	if err != nil {
		return fmt.Errorf("fetching spot price: %w", err)
	}

	klines, err := e.feed.GetKlines(ctx, e.cfg.Underlying, e.cfg.KlineInterval, e.cfg.KlineLimit)
	if err != nil {
		return fmt.Errorf("fetching klines: %w", err)
	}
	closes := domain.Closes(klines)

	snapshots, err := e.exchange.ListMarkets(ctx, e.cfg.SeriesTicker)
	if err != nil {
		return fmt.Errorf("listing markets: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrent)
	for _, snap := range snapshots {
		snap.Underlying = e.cfg.Underlying
		snap.UnderlyingPrice = spot
		g.Go(func() error {
			e.evaluateMarket(gctx, snap, closes, balance)
			return nil
		})
	}
	return g.Wait()
}

// LastBalance returns the balance observed on the most recent cycle.
func (e *Engine) LastBalance() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBalance
}

// evaluateMarket pushes one market through signal, edge, risk, sizing
// and execution. Evaluation failures are logged and never abort the
// cycle; other markets still get their turn.
func (e *Engine) evaluateMarket(ctx context.Context, snap *domain.MarketSnapshot, closes []float64, balance int64) {
	now := e.nowFn()

	sig, err := e.estimator.Estimate(ctx, snap, closes, e.cfg.Sentiment)
	if err != nil {
		if errors.Is(err, ports.ErrForecastOutOfRange) {
			e.logger.Error(ctx, err, "model produced unusable probability, skipping market", map[string]interface{}{
				"ticker": snap.Ticker,
			})
			return
		}
		e.logger.Warn(ctx, "signal estimation failed", map[string]interface{}{
			"ticker": snap.Ticker,
			"error":  err.Error(),
		})
		return
	}

	ev, err := e.calc.Evaluate(snap, sig, now)
	if err != nil {
		// Stale snapshots and extreme prices are discards: no decision
		// was reachable, so nothing goes to the ledger.
		e.logger.Warn(ctx, "market discarded", map[string]interface{}{
			"ticker": snap.Ticker,
			"error":  err.Error(),
		})
		return
	}

	decision := &domain.TradeDecision{
		ID:              uuid.NewString(),
		Ticker:          snap.Ticker,
		Side:            ev.Side,
		Action:          domain.ActionBuy,
		OurProb:         ev.OurProb,
		MarketProb:      ev.MarketProb,
		Edge:            ev.Edge,
		MinEdge:         ev.MinEdge,
		PriceCents:      ev.PriceCents,
		BalanceCents:    balance,
		Regime:          sig.Regime,
		Momentum:        sig.Momentum,
		Volatility:      sig.Volatility,
		Sentiment:       sig.Sentiment,
		MinutesToExpiry: snap.MinutesToExpiry(now),
		LatencyMS:       now.Sub(snap.CapturedAt).Milliseconds(),
		DecidedAt:       now,
	}

	if !ev.Passed() {
		e.recordRejection(ctx, decision, ev.Reason)
		return
	}

	if reason := e.guard.PreCheck(ctx, balance, now); reason != "" {
		e.recordRejection(ctx, decision, reason)
		return
	}

	size, err := e.sizer.Compute(ev.OurProb, ev.PriceCents, balance)
	if err != nil {
		e.logger.Error(ctx, err, "sizing failed", map[string]interface{}{"ticker": snap.Ticker})
		return
	}
	if size.Reason != "" {
		e.recordRejection(ctx, decision, size.Reason)
		return
	}
	decision.Contracts = size.Contracts
	decision.CostCents = size.CostCents

	// PostCheck reserves the cost against the exposure books. From here
	// on, any path that does not leave an order on the book must give the
	// reservation back.
	if reason := e.guard.PostCheck(ctx, size.CostCents, balance); reason != "" {
		e.recordRejection(ctx, decision, reason)
		return
	}

	// Last look before money moves: if too much time passed since the
	// snapshot, the price may no longer be there.
	submitAt := e.nowFn()
	decision.LatencyMS = submitAt.Sub(snap.CapturedAt).Milliseconds()
	if reason := e.guard.CheckLatency(snap.CapturedAt, submitAt); reason != "" {
		e.guard.Release(ctx, size.CostCents)
		e.recordRejection(ctx, decision, reason)
		return
	}

	if e.cfg.DryRun {
		e.guard.Release(ctx, size.CostCents)
		decision.Outcome = domain.OutcomeAccepted
		if err := e.ledger.AppendDecision(ctx, decision); err != nil {
			e.logger.Error(ctx, err, "failed to append decision record", map[string]interface{}{"decisionID": decision.ID})
		}
		e.logger.Info(ctx, "dry run, order not submitted", map[string]interface{}{
			"ticker":    snap.Ticker,
			"side":      ev.Side,
			"contracts": size.Contracts,
			"costCents": size.CostCents,
		})
		return
	}

	order := &domain.Order{
		DecisionID: decision.ID,
		Ticker:     snap.Ticker,
		Side:       ev.Side,
		Contracts:  size.Contracts,
		PriceCents: ev.PriceCents,
	}
	result, err := e.exec.Submit(ctx, order)
	if err != nil {
		e.guard.Release(ctx, size.CostCents)
		if errors.Is(err, executor.ErrOrderOutstanding) {
			e.recordRejection(ctx, decision, domain.ReasonOrderOutstanding)
			return
		}
		e.logger.Error(ctx, err, "order submission failed", map[string]interface{}{"ticker": snap.Ticker})
		return
	}
	decision.OrderStatus = result.Status
	if result.Status == domain.OrderRejected {
		e.guard.Release(ctx, size.CostCents)
		e.recordRejection(ctx, decision, result.RejectReason)
		return
	}

	decision.Outcome = domain.OutcomeAccepted
	if err := e.ledger.AppendDecision(ctx, decision); err != nil {
		e.logger.Error(ctx, err, "failed to append decision record", map[string]interface{}{"decisionID": decision.ID})
	}

	trade := &domain.Trade{
		ID:         decision.ID,
		Ticker:     snap.Ticker,
		Side:       ev.Side,
		PriceCents: ev.PriceCents,
		Contracts:  size.Contracts,
		CostCents:  size.CostCents,
		Edge:       ev.Edge,
		OurProb:    ev.OurProb,
		Regime:     sig.Regime,
		PlacedAt:   now,
		Result:     domain.ResultPending,
	}
	if err := e.repo.InsertTrade(ctx, trade); err != nil {
		e.logger.Error(ctx, err, "failed to store trade", map[string]interface{}{"tradeID": trade.ID})
	}

	e.logger.Info(ctx, "order placed", map[string]interface{}{
		"ticker":    snap.Ticker,
		"side":      ev.Side,
		"contracts": size.Contracts,
		"costCents": size.CostCents,
		"edge":      ev.Edge,
		"orderID":   result.ExchangeOrderID,
	})
}

func (e *Engine) recordRejection(ctx context.Context, decision *domain.TradeDecision, reason string) {
	decision.Outcome = domain.OutcomeRejected
	decision.Reason = reason
	if err := e.ledger.AppendDecision(ctx, decision); err != nil {
		e.logger.Error(ctx, err, "failed to append rejection record", map[string]interface{}{"decisionID": decision.ID})
	}
	e.logger.Info(ctx, "candidate rejected", map[string]interface{}{
		"ticker": decision.Ticker,
		"side":   decision.Side,
		"edge":   decision.Edge,
		"reason": reason,
	})
}
