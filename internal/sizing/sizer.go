package sizing

import (
	"fmt"

	"kalshiEdgeBot/internal/domain"
)

// Config holds the sizing parameters.
type Config struct {
	KellyFraction  float64 // Fraction of full Kelly to bet, e.g. 0.03
	MaxPositionPct float64 // Hard cap on the bankroll fraction per trade, e.g. 0.02
	MinContracts   int     // Smallest lot worth placing, e.g. 1
	MaxContracts   int     // Upper bound per order, 0 for none
}

// Size is the sizer's verdict for one accepted candidate.
type Size struct {
	Contracts int
	CostCents int64
	Fraction  float64 // Bankroll fraction actually staked, after the cap
	Reason    string  // Rejection reason, empty when the size stands
}

// Sizer computes fractional-Kelly position sizes for binary contracts.
type Sizer struct {
	cfg Config
}

// New creates a position sizer.
func New(cfg Config) (*Sizer, error) {
	if cfg.KellyFraction <= 0 || cfg.KellyFraction > 1 {
		return nil, fmt.Errorf("kelly fraction %v out of range (0, 1]", cfg.KellyFraction)
	}
	if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1 {
		return nil, fmt.Errorf("max position pct %v out of range (0, 1]", cfg.MaxPositionPct)
	}
	if cfg.MinContracts < 1 {
		return nil, fmt.Errorf("min contracts must be at least 1")
	}
	return &Sizer{cfg: cfg}, nil
}

// Compute sizes a position for the chosen side.
//
// For a contract at price p cents the net odds are b = (100-p)/p, and the
// full Kelly fraction is (b*q - (1-q))/b for win probability q. That
// fraction is scaled down by the configured multiplier and then clamped to
// the per-trade cap, so a strong edge bets the cap, never more. Contracts
// round down, which keeps the cost at or under balance * MaxPositionPct.
func (s *Sizer) Compute(ourProb float64, priceCents, balanceCents int64) (*Size, error) {
	if priceCents <= 0 || priceCents >= 100 {
		return nil, fmt.Errorf("price %d cents out of range (0, 100)", priceCents)
	}
	if balanceCents <= 0 {
		return nil, fmt.Errorf("balance %d cents must be positive", balanceCents)
	}
	if ourProb <= 0 || ourProb >= 1 {
		return nil, fmt.Errorf("win probability %v out of range (0, 1)", ourProb)
	}

	b := float64(100-priceCents) / float64(priceCents)
	kelly := (b*ourProb - (1 - ourProb)) / b
	if kelly <= 0 {
		return &Size{Reason: domain.ReasonBelowMinimumLot}, nil
	}

	fraction := kelly * s.cfg.KellyFraction
	if fraction > s.cfg.MaxPositionPct {
		fraction = s.cfg.MaxPositionPct
	}

	stakeCents := int64(float64(balanceCents) * fraction)
	contracts := int(stakeCents / priceCents)

	if contracts < s.cfg.MinContracts {
		return &Size{Reason: domain.ReasonBelowMinimumLot}, nil
	}
	if s.cfg.MaxContracts > 0 && contracts > s.cfg.MaxContracts {
		contracts = s.cfg.MaxContracts
	}

	cost := int64(contracts) * priceCents
	return &Size{
		Contracts: contracts,
		CostCents: cost,
		Fraction:  float64(cost) / float64(balanceCents),
	}, nil
}
