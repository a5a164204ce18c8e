package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kalshiEdgeBot/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func guardConfig() GuardConfig {
	return GuardConfig{
		BreakerThreshold: 10,
		BreakerCooldown:  6 * time.Hour,
		MaxExposurePct:   0.10,
		MaxOpenPositions: 5,
		MaxDailyLossPct:  0.05,
		LatencySLA:       5 * time.Second,
	}
}

func lostTrade(costCents int64) *domain.Trade {
	return &domain.Trade{
		Ticker:    "KXBTCD-26AUG3017-T110000",
		Side:      domain.SideYes,
		Result:    domain.ResultLost,
		CostCents: costCents,
		PnLCents:  -costCents,
	}
}

func wonTrade(priceCents int64, contracts int) *domain.Trade {
	return &domain.Trade{
		Ticker:    "KXBTCD-26AUG3017-T110000",
		Side:      domain.SideYes,
		Result:    domain.ResultWon,
		CostCents: priceCents * int64(contracts),
		PnLCents:  (100 - priceCents) * int64(contracts),
	}
}

func TestBreakerTripsOnTenthLoss(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	g := NewGuard(guardConfig(), &mockLogger{})

	// Nine straight losses leave trading open.
	for i := 0; i < 9; i++ {
		g.PostCheck(ctx, 100, 1_000_000)
		g.RecordSettlement(ctx, lostTrade(100), now)
	}
	assert.Empty(t, g.PreCheck(ctx, 1_000_000, now))

	// The tenth trips the breaker and the next candidate is rejected.
	g.PostCheck(ctx, 100, 1_000_000)
	g.RecordSettlement(ctx, lostTrade(100), now)
	assert.Equal(t, domain.ReasonCircuitBreaker, g.PreCheck(ctx, 1_000_000, now))

	breaker := g.Breaker()
	assert.True(t, breaker.Tripped)
	assert.Equal(t, now.Add(6*time.Hour), breaker.CooldownUntil)
}

func TestBreakerResetsAfterCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	g := NewGuard(guardConfig(), &mockLogger{})

	for i := 0; i < 10; i++ {
		g.PostCheck(ctx, 100, 1_000_000)
		g.RecordSettlement(ctx, lostTrade(100), now)
	}
	assert.Equal(t, domain.ReasonCircuitBreaker, g.PreCheck(ctx, 1_000_000, now))

	// Still halted one minute before the cooldown ends.
	assert.Equal(t, domain.ReasonCircuitBreaker, g.PreCheck(ctx, 1_000_000, now.Add(6*time.Hour-time.Minute)))

	// Past the cooldown trading resumes and the streak is cleared.
	assert.Empty(t, g.PreCheck(ctx, 1_000_000, now.Add(6*time.Hour+time.Second)))
	assert.False(t, g.Breaker().Tripped)
	assert.Zero(t, g.Breaker().ConsecutiveLosses)
}

func TestWinResetsLossStreak(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	g := NewGuard(guardConfig(), &mockLogger{})

	for i := 0; i < 9; i++ {
		g.PostCheck(ctx, 100, 1_000_000)
		g.RecordSettlement(ctx, lostTrade(100), now)
	}
	g.PostCheck(ctx, 400, 1_000_000)
	g.RecordSettlement(ctx, wonTrade(40, 10), now)
	assert.Zero(t, g.Breaker().ConsecutiveLosses)

	// A fresh loss starts the count from one, far from the threshold.
	g.PostCheck(ctx, 100, 1_000_000)
	g.RecordSettlement(ctx, lostTrade(100), now)
	assert.Empty(t, g.PreCheck(ctx, 1_000_000, now))
}

func TestExposureCeiling(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(guardConfig(), &mockLogger{})

	// 10% of a $1000 balance is $100 of room; each pass reserves its cost.
	assert.Empty(t, g.PostCheck(ctx, 9_000, 100_000))
	assert.Empty(t, g.PostCheck(ctx, 1_000, 100_000))
	assert.Equal(t, domain.ReasonExposureCeiling, g.PostCheck(ctx, 1, 100_000))

	// Releasing a reservation frees the headroom again.
	g.Release(ctx, 1_000)
	assert.Empty(t, g.PostCheck(ctx, 1_000, 100_000))
}

func TestConcurrentReservationsShareOneCeiling(t *testing.T) {
	ctx := context.Background()
	cfg := guardConfig()
	cfg.MaxExposurePct = 0.02 // $20 of room on a $1000 balance
	g := NewGuard(cfg, &mockLogger{})

	// Two candidates race for headroom that fits only one of them.
	reasons := make(chan string, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reasons <- g.PostCheck(ctx, 2_000, 100_000)
		}()
	}
	wg.Wait()
	close(reasons)

	passed, rejected := 0, 0
	for reason := range reasons {
		if reason == "" {
			passed++
		} else {
			assert.Equal(t, domain.ReasonExposureCeiling, reason)
			rejected++
		}
	}
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, rejected)

	exposure, open := g.Exposure()
	assert.LessOrEqual(t, exposure, int64(2_000))
	assert.Equal(t, 1, open)
}

func TestMaxOpenPositions(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	g := NewGuard(guardConfig(), &mockLogger{})

	for i := 0; i < 5; i++ {
		assert.Empty(t, g.PostCheck(ctx, 100, 1_000_000))
	}
	assert.Equal(t, domain.ReasonMaxOpenPositions, g.PostCheck(ctx, 100, 1_000_000))
	assert.Equal(t, domain.ReasonMaxOpenPositions, g.PreCheck(ctx, 1_000_000, now))
}

func TestDailyLossCap(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	g := NewGuard(guardConfig(), &mockLogger{})

	// Lose 5% of a $1000 balance in one go.
	g.PostCheck(ctx, 5_000, 1_000_000)
	g.RecordSettlement(ctx, lostTrade(5_000), now)
	assert.Equal(t, domain.ReasonDailyLossCap, g.PreCheck(ctx, 100_000, now))

	// The daily reset clears the cap.
	g.ResetDaily(now)
	assert.Empty(t, g.PreCheck(ctx, 100_000, now))
}

func TestCheckLatency(t *testing.T) {
	g := NewGuard(guardConfig(), &mockLogger{})
	captured := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	assert.Empty(t, g.CheckLatency(captured, captured.Add(3*time.Second)))
	assert.Equal(t, domain.ReasonStaleDecision, g.CheckLatency(captured, captured.Add(6*time.Second)))
}

func TestSettlementReleasesExposure(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	g := NewGuard(guardConfig(), &mockLogger{})

	assert.Empty(t, g.PostCheck(ctx, 2_000, 100_000))
	exposure, open := g.Exposure()
	assert.Equal(t, int64(2_000), exposure)
	assert.Equal(t, 1, open)

	g.RecordSettlement(ctx, wonTrade(40, 50), now)
	exposure, open = g.Exposure()
	assert.Equal(t, int64(0), exposure)
	assert.Equal(t, 0, open)
	assert.Equal(t, int64(3_000), g.DailyPnL())
}
