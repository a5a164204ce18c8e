package risk

import (
	"context"
	"sync"
	"time"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

// GuardConfig holds configuration for the risk guard.
type GuardConfig struct {
	BreakerThreshold int           // Consecutive losses that trip the breaker, e.g. 10
	BreakerCooldown  time.Duration // Halt duration once tripped, e.g. 6h
	MaxExposurePct   float64       // Ceiling on total pending cost as a balance fraction, e.g. 0.10
	MaxOpenPositions int           // Ceiling on concurrently pending trades
	MaxDailyLossPct  float64       // Daily realised loss cap as a balance fraction, 0 disables
	LatencySLA       time.Duration // Snapshot-to-submission budget, e.g. 5s
}

// Guard enforces the risk limits around the decision pipeline. All state
// mutates under one mutex; everything else reads consistent copies.
type Guard struct {
	mu      sync.Mutex
	cfg     GuardConfig
	logger  ports.Logger
	breaker domain.CircuitBreakerState

	exposureCents int64
	openPositions int
	dailyPnLCents int64
	lastDailyReset time.Time
}

// NewGuard creates a risk guard.
func NewGuard(cfg GuardConfig, logger ports.Logger) *Guard {
	return &Guard{cfg: cfg, logger: logger}
}

// PreCheck gates a candidate before sizing. It returns an empty string
// when trading may proceed, otherwise the stable rejection reason.
// A breaker whose cooldown has elapsed resets here and trading resumes.
func (g *Guard) PreCheck(ctx context.Context, balanceCents int64, now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.breaker.Active(now) {
		return domain.ReasonCircuitBreaker
	}
	if g.breaker.Tripped {
		// Cooldown elapsed; first evaluation afterwards resumes trading.
		g.breaker.Tripped = false
		g.breaker.ConsecutiveLosses = 0
		g.logger.Info(ctx, "circuit breaker cooldown elapsed, trading resumed")
	}

	if g.cfg.MaxOpenPositions > 0 && g.openPositions >= g.cfg.MaxOpenPositions {
		return domain.ReasonMaxOpenPositions
	}

	if g.cfg.MaxDailyLossPct > 0 && balanceCents > 0 {
		capCents := int64(float64(balanceCents) * g.cfg.MaxDailyLossPct)
		if g.dailyPnLCents <= -capCents {
			return domain.ReasonDailyLossCap
		}
	}

	return ""
}

// PostCheck gates a sized position against the aggregate exposure and
// open-position ceilings, and reserves the cost in the same critical
// section on success. Markets are evaluated concurrently, so checking
// and reserving must be one step or two candidates could both claim the
// last slice of headroom. The caller keeps the reservation for the life
// of the trade (RecordSettlement gives it back) and must Release it on
// any path where the order never reaches the book.
func (g *Guard) PostCheck(ctx context.Context, costCents, balanceCents int64) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ceiling := int64(float64(balanceCents) * g.cfg.MaxExposurePct)
	if g.exposureCents+costCents > ceiling {
		return domain.ReasonExposureCeiling
	}
	if g.cfg.MaxOpenPositions > 0 && g.openPositions >= g.cfg.MaxOpenPositions {
		return domain.ReasonMaxOpenPositions
	}

	g.exposureCents += costCents
	g.openPositions++
	return ""
}

// Release returns a PostCheck reservation whose order never made it to
// the book.
func (g *Guard) Release(ctx context.Context, costCents int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.exposureCents -= costCents
	if g.exposureCents < 0 {
		g.exposureCents = 0
	}
	if g.openPositions > 0 {
		g.openPositions--
	}
}

// CheckLatency enforces the snapshot-to-submission budget right before an
// order goes out. A breach means market conditions may have moved on.
func (g *Guard) CheckLatency(capturedAt, now time.Time) string {
	if now.Sub(capturedAt) > g.cfg.LatencySLA {
		return domain.ReasonStaleDecision
	}
	return ""
}

// RecordSettlement releases exposure and feeds the breaker. Losses
// accumulate; hitting the threshold trips the breaker for the cooldown.
// A single win resets the streak.
func (g *Guard) RecordSettlement(ctx context.Context, trade *domain.Trade, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.exposureCents -= trade.CostCents
	if g.exposureCents < 0 {
		g.exposureCents = 0
	}
	if g.openPositions > 0 {
		g.openPositions--
	}
	g.dailyPnLCents += trade.PnLCents

	switch trade.Result {
	case domain.ResultWon:
		g.breaker.ConsecutiveLosses = 0
	case domain.ResultLost:
		g.breaker.ConsecutiveLosses++
		if !g.breaker.Tripped && g.breaker.ConsecutiveLosses >= g.cfg.BreakerThreshold {
			g.breaker.Tripped = true
			g.breaker.CooldownUntil = now.Add(g.cfg.BreakerCooldown)
			g.logger.Warn(ctx, "circuit breaker tripped", map[string]interface{}{
				"consecutiveLosses": g.breaker.ConsecutiveLosses,
				"cooldownUntil":     g.breaker.CooldownUntil,
			})
		}
	}
}

// ResetDaily clears the daily PnL accumulator.
func (g *Guard) ResetDaily(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyPnLCents = 0
	g.lastDailyReset = now
}

// Breaker returns a copy of the breaker state.
func (g *Guard) Breaker() domain.CircuitBreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.breaker
}

// Exposure returns the current pending cost and open position count.
func (g *Guard) Exposure() (int64, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exposureCents, g.openPositions
}

// DailyPnL returns the realised PnL since the last daily reset.
func (g *Guard) DailyPnL() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnLCents
}
