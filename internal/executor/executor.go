package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

var (
	// ErrOrderOutstanding means a submission for this ticker is already in
	// flight or a position is already open; the candidate must be rejected.
	ErrOrderOutstanding = errors.New(domain.ReasonOrderOutstanding)

	// ErrSubmissionsHalted means an authentication failure stopped all
	// order flow until the operator rotates credentials.
	ErrSubmissionsHalted = errors.New("order submissions halted after authentication failure")
)

// Executor submits orders with per-ticker mutual exclusion. One order per
// ticker at a time, one position per ticker, no retries: a failed or
// rejected submission surfaces as-is and the engine decides what to log.
type Executor struct {
	mu       sync.Mutex
	inflight map[string]bool
	halted   bool

	exchange ports.ExchangeClient
	repo     ports.TradeRepository
	logger   ports.Logger
}

// New creates an order executor.
func New(exchange ports.ExchangeClient, repo ports.TradeRepository, logger ports.Logger) (*Executor, error) {
	if exchange == nil || repo == nil || logger == nil {
		return nil, fmt.Errorf("exchange, repository and logger are required")
	}
	return &Executor{
		inflight: make(map[string]bool),
		exchange: exchange,
		repo:     repo,
		logger:   logger,
	}, nil
}

// Submit places one order. It refuses tickers that already have an order
// in flight or a pending position, and halts engine-wide after an
// authentication failure. Exchange rejections come back as a result with
// the exchange's wording preserved, not as an error.
func (e *Executor) Submit(ctx context.Context, order *domain.Order) (*domain.OrderResult, error) {
	e.mu.Lock()
	if e.halted {
		e.mu.Unlock()
		return nil, ErrSubmissionsHalted
	}
	if e.inflight[order.Ticker] {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrOrderOutstanding, order.Ticker)
	}
	e.inflight[order.Ticker] = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, order.Ticker)
		e.mu.Unlock()
	}()

	open, err := e.repo.FindOpenByTicker(ctx, order.Ticker)
	if err != nil {
		return nil, fmt.Errorf("checking open position for %s: %w", order.Ticker, err)
	}
	if open != nil {
		return nil, fmt.Errorf("%w: %s holds pending trade %s", ErrOrderOutstanding, order.Ticker, open.ID)
	}

	result, err := e.exchange.PlaceOrder(ctx, order)
	if err != nil {
		if errors.Is(err, ports.ErrAuthenticationFailed) {
			e.mu.Lock()
			e.halted = true
			e.mu.Unlock()
			e.logger.Error(ctx, err, "authentication failed, halting all order submissions", map[string]interface{}{
				"ticker": order.Ticker,
			})
		}
		return nil, fmt.Errorf("placing order for %s: %w", order.Ticker, err)
	}

	if result.Status == domain.OrderRejected {
		e.logger.Warn(ctx, "order rejected by exchange", map[string]interface{}{
			"ticker":    order.Ticker,
			"side":      order.Side,
			"contracts": order.Contracts,
			"reason":    result.RejectReason,
		})
	}
	return result, nil
}

// Halted reports whether submissions are stopped pending new credentials.
func (e *Executor) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// Resume lifts the authentication halt after credentials were rotated.
func (e *Executor) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted = false
}
