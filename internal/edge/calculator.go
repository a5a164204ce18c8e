package edge

import (
	"errors"
	"fmt"
	"time"

	"kalshiEdgeBot/internal/domain"
)

// Discard errors. A discarded candidate is dropped without a ledger
// record; it never reached a tradeable decision.
var (
	ErrStaleSnapshot     = errors.New("market snapshot too stale to evaluate")
	ErrNoProfitPotential = errors.New("price too extreme to carry profit potential")
)

// Config holds the gating thresholds of the edge calculator.
type Config struct {
	MinEdge        float64 // Base threshold, e.g. 0.12
	DynamicMinEdge bool    // Adjust the threshold by regime

	// Regime-adjusted thresholds, used when DynamicMinEdge is set.
	MinEdgeTrending float64 // e.g. 0.07
	MinEdgeVolatile float64 // e.g. 0.15

	// Bounds the dynamic threshold may never leave.
	MinEdgeFloor   float64 // e.g. 0.05
	MinEdgeCeiling float64 // e.g. 0.20

	MaxSnapshotAge     time.Duration // Staleness cutoff for evaluation
	MinMinutesToExpiry float64       // Too close to expiry below this
	MaxMinutesToExpiry float64       // Too far from expiry above this
	MinStrikeGapPct    float64       // Strike too close to spot below this

	// Prices at or beyond these leave no room for profit.
	MinPriceCents int64 // e.g. 5
	MaxPriceCents int64 // e.g. 95
}

// Evaluation is the edge calculator's verdict on one market.
type Evaluation struct {
	Side       domain.Side
	OurProb    float64 // Probability the chosen side wins
	MarketProb float64 // Probability the entry price implies
	Edge       float64 // OurProb - MarketProb
	MinEdge    float64 // Threshold in force for this evaluation
	PriceCents int64   // Entry price for the chosen side
	Reason     string  // Rejection reason, empty when the candidate passes
}

// Passed reports whether the candidate cleared every gate.
func (e *Evaluation) Passed() bool {
	return e.Reason == ""
}

// Calculator turns a signal and a snapshot into a gated trade candidate.
type Calculator struct {
	cfg Config
}

// New creates an edge calculator.
func New(cfg Config) (*Calculator, error) {
	if cfg.MinEdge <= 0 || cfg.MinEdge >= 1 {
		return nil, fmt.Errorf("min edge %v out of range (0, 1)", cfg.MinEdge)
	}
	if cfg.MaxSnapshotAge <= 0 {
		return nil, fmt.Errorf("max snapshot age must be positive")
	}
	if cfg.MinMinutesToExpiry < 0 || cfg.MaxMinutesToExpiry <= cfg.MinMinutesToExpiry {
		return nil, fmt.Errorf("invalid expiry window [%v, %v]", cfg.MinMinutesToExpiry, cfg.MaxMinutesToExpiry)
	}
	return &Calculator{cfg: cfg}, nil
}

// MinEdgeFor returns the threshold in force for a regime. Trending
// markets may act on thinner edges, volatile ones demand more, and the
// result never leaves the configured bounds.
func (c *Calculator) MinEdgeFor(regime domain.Regime) float64 {
	if !c.cfg.DynamicMinEdge {
		return c.cfg.MinEdge
	}
	var threshold float64
	switch regime {
	case domain.RegimeTrending:
		threshold = c.cfg.MinEdgeTrending
	case domain.RegimeVolatile:
		threshold = c.cfg.MinEdgeVolatile
	default:
		threshold = c.cfg.MinEdge
	}
	if threshold < c.cfg.MinEdgeFloor {
		threshold = c.cfg.MinEdgeFloor
	}
	if threshold > c.cfg.MinEdgeCeiling {
		threshold = c.cfg.MinEdgeCeiling
	}
	return threshold
}

// Evaluate gates one market. Stale snapshots and extreme prices are
// discard errors; every other verdict comes back as an Evaluation, with
// Reason set for rejections that must be recorded.
func (c *Calculator) Evaluate(snapshot *domain.MarketSnapshot, signal *domain.Signal, now time.Time) (*Evaluation, error) {
	if snapshot.Age(now) > c.cfg.MaxSnapshotAge {
		return nil, fmt.Errorf("%w: age %v exceeds %v", ErrStaleSnapshot, snapshot.Age(now), c.cfg.MaxSnapshotAge)
	}

	// Both sides are priced; take the one our model disagrees with the
	// market most about, in our favour.
	side := domain.SideYes
	if signal.ProbFor(domain.SideNo)-domain.MarketProbFromPrice(snapshot.PriceCents(domain.SideNo)) >
		signal.ProbFor(domain.SideYes)-domain.MarketProbFromPrice(snapshot.PriceCents(domain.SideYes)) {
		side = domain.SideNo
	}

	price := snapshot.PriceCents(side)
	if price <= c.cfg.MinPriceCents || price >= c.cfg.MaxPriceCents {
		return nil, fmt.Errorf("%w: %s at %d cents", ErrNoProfitPotential, side, price)
	}

	marketProb := domain.MarketProbFromPrice(price)
	ourProb := signal.ProbFor(side)
	minEdge := c.MinEdgeFor(signal.Regime)

	ev := &Evaluation{
		Side:       side,
		OurProb:    ourProb,
		MarketProb: marketProb,
		Edge:       ourProb - marketProb,
		MinEdge:    minEdge,
		PriceCents: price,
	}

	minutesLeft := snapshot.MinutesToExpiry(now)
	switch {
	case minutesLeft < c.cfg.MinMinutesToExpiry:
		ev.Reason = domain.ReasonTooCloseToExpiry
	case minutesLeft > c.cfg.MaxMinutesToExpiry:
		ev.Reason = domain.ReasonTooFarFromExpiry
	case snapshot.StrikeGapPct() < c.cfg.MinStrikeGapPct:
		ev.Reason = domain.ReasonStrikeGapTooSmall
	case ev.Edge < minEdge:
		ev.Reason = domain.ReasonEdgeBelowThreshold
	}

	return ev, nil
}
