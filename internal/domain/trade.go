package domain

import "time"

// Trade represents a filled position held to settlement.
type Trade struct {
	ID         string // Same UUID as the decision that produced it
	Ticker     string
	Side       Side
	PriceCents int64 // Entry price per contract
	Contracts  int
	CostCents  int64 // PriceCents * Contracts, capital at risk
	Edge       float64
	OurProb    float64
	Regime     Regime
	PlacedAt   time.Time
	Result     ResultStatus
	PnLCents   int64      // 0 while pending
	SettledAt  *time.Time // nil while pending
	Settlement float64    // Underlying settlement value, 0 while pending
}

// IsSettled reports whether the trade has left the pending state.
func (t *Trade) IsSettled() bool {
	return t.Result == ResultWon || t.Result == ResultLost
}

// SettlementPnLCents computes the profit in cents for a resolved trade.
// A win pays 100 cents per contract less the entry cost; a loss forfeits
// the entry cost.
func SettlementPnLCents(result ResultStatus, priceCents int64, contracts int) int64 {
	switch result {
	case ResultWon:
		return (100 - priceCents) * int64(contracts)
	case ResultLost:
		return -priceCents * int64(contracts)
	default:
		return 0
	}
}
