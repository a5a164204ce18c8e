package ports

import (
	"context"
	"time"

	"kalshiEdgeBot/internal/domain"
)

// TradeFilter narrows and orders a trade listing. Zero values mean
// "no constraint" for filters; Limit defaults are applied by callers.
type TradeFilter struct {
	Ticker   string
	Side     domain.Side
	Result   domain.ResultStatus
	From     time.Time
	To       time.Time
	SortBy   string // "timestamp", "price", "edge" or "pnl"
	SortDesc bool
	Limit    int
	Offset   int
}

// DailyStat is one row of the per-day performance aggregate.
type DailyStat struct {
	Day         string // "2006-01-02"
	Trades      int
	Settled     int
	Wins        int
	WinRate     float64 // Wins over settled, 0 when nothing settled
	PnLCents    int64
	VolumeCents int64 // Sum of entry costs
}

// TradeRepository is the queryable projection of the trade ledger.
type TradeRepository interface {
	// InsertTrade stores a newly placed trade in pending state.
	InsertTrade(ctx context.Context, trade *domain.Trade) error

	// FindByID retrieves a trade by its ID. Returns ErrNotFound when absent.
	FindByID(ctx context.Context, id string) (*domain.Trade, error)

	// FindPending retrieves all trades awaiting settlement.
	FindPending(ctx context.Context) ([]*domain.Trade, error)

	// FindOpenByTicker retrieves the pending trade for a ticker, if any.
	// Returns nil, nil when there is none.
	FindOpenByTicker(ctx context.Context, ticker string) (*domain.Trade, error)

	// MarkSettled applies the one-way pending to won/lost transition.
	// Settling an already settled trade is a no-op returning ErrDuplicateEntry.
	MarkSettled(ctx context.Context, id string, result domain.ResultStatus, pnlCents int64, settlement float64, settledAt time.Time) error

	// ListTrades retrieves trades matching the filter plus the total count
	// ignoring pagination.
	ListTrades(ctx context.Context, filter TradeFilter) ([]*domain.Trade, int, error)

	// DailySummary aggregates per-day trade counts, win rate and PnL.
	DailySummary(ctx context.Context) ([]DailyStat, error)
}

// DecisionLedger is the append-only audit log of every evaluated
// candidate and every settlement correction.
type DecisionLedger interface {
	// AppendDecision appends one decision record.
	AppendDecision(ctx context.Context, decision *domain.TradeDecision) error

	// AppendSettlement appends a settlement correction record for a trade.
	// Prior records are never rewritten.
	AppendSettlement(ctx context.Context, trade *domain.Trade) error
}
