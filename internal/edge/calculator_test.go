package edge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshiEdgeBot/internal/domain"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func testCalcConfig() Config {
	return Config{
		MinEdge:            0.12,
		MinEdgeTrending:    0.07,
		MinEdgeVolatile:    0.15,
		MinEdgeFloor:       0.05,
		MinEdgeCeiling:     0.20,
		MaxSnapshotAge:     30 * time.Second,
		MinMinutesToExpiry: 15,
		MaxMinutesToExpiry: 600,
		MinStrikeGapPct:    0.001,
		MinPriceCents:      5,
		MaxPriceCents:      95,
	}
}

func snap(yesBid, yesAsk int64, minutesToExpiry float64) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Ticker:          "KXBTCD-26AUG3017-T110000",
		Underlying:      "BTCUSDT",
		Strike:          110000,
		UnderlyingPrice: 111500,
		YesBidCents:     yesBid,
		YesAskCents:     yesAsk,
		ExpiryTime:      testNow.Add(time.Duration(minutesToExpiry * float64(time.Minute))),
		CapturedAt:      testNow,
	}
}

func yesSignal(prob float64) *domain.Signal {
	return &domain.Signal{OurProb: prob, Regime: domain.RegimeRanging}
}

func TestEvaluateAcceptsSufficientEdge(t *testing.T) {
	calc, err := New(testCalcConfig())
	require.NoError(t, err)

	// Model says 0.55, YES asks 40 cents: edge 0.15 clears the 0.12 bar.
	ev, err := calc.Evaluate(snap(38, 40, 120), yesSignal(0.55), testNow)
	require.NoError(t, err)
	assert.True(t, ev.Passed())
	assert.Equal(t, domain.SideYes, ev.Side)
	assert.InDelta(t, 0.15, ev.Edge, 1e-9)
	assert.Equal(t, int64(40), ev.PriceCents)
}

func TestEvaluateRejectsThinEdge(t *testing.T) {
	calc, err := New(testCalcConfig())
	require.NoError(t, err)

	// Edge of 0.05 is under the 0.12 bar: rejected, and the rejection is
	// recorded rather than silently dropped.
	ev, err := calc.Evaluate(snap(40, 40, 120), yesSignal(0.45), testNow)
	require.NoError(t, err)
	assert.False(t, ev.Passed())
	assert.Equal(t, domain.ReasonEdgeBelowThreshold, ev.Reason)
	assert.InDelta(t, 0.05, ev.Edge, 1e-9)
}

func TestEvaluatePicksNoSide(t *testing.T) {
	calc, err := New(testCalcConfig())
	require.NoError(t, err)

	// Model at 0.30 against a 60 cent YES ask: NO at 42 cents carries a
	// 0.28 edge.
	ev, err := calc.Evaluate(snap(58, 60, 120), yesSignal(0.30), testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.SideNo, ev.Side)
	assert.Equal(t, int64(42), ev.PriceCents)
	assert.InDelta(t, 0.28, ev.Edge, 1e-9)
	assert.True(t, ev.Passed())
}

func TestEvaluateDiscardsStaleSnapshot(t *testing.T) {
	calc, err := New(testCalcConfig())
	require.NoError(t, err)

	s := snap(38, 40, 120)
	s.CapturedAt = testNow.Add(-time.Minute)

	_, err = calc.Evaluate(s, yesSignal(0.55), testNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStaleSnapshot))
}

func TestEvaluateDiscardsExtremePrices(t *testing.T) {
	calc, err := New(testCalcConfig())
	require.NoError(t, err)

	_, err = calc.Evaluate(snap(95, 97, 120), yesSignal(0.99), testNow)
	assert.True(t, errors.Is(err, ErrNoProfitPotential))

	// YES ask of 4 cents is under the floor as well.
	_, err = calc.Evaluate(snap(2, 4, 120), yesSignal(0.50), testNow)
	assert.True(t, errors.Is(err, ErrNoProfitPotential))
}

func TestEvaluateExpiryWindow(t *testing.T) {
	calc, err := New(testCalcConfig())
	require.NoError(t, err)

	ev, err := calc.Evaluate(snap(38, 40, 5), yesSignal(0.55), testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonTooCloseToExpiry, ev.Reason)

	ev, err = calc.Evaluate(snap(38, 40, 2000), yesSignal(0.55), testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonTooFarFromExpiry, ev.Reason)
}

func TestEvaluateStrikeGap(t *testing.T) {
	cfg := testCalcConfig()
	cfg.MinStrikeGapPct = 0.05
	calc, err := New(cfg)
	require.NoError(t, err)

	// Spot 111500 vs strike 110000 is a 1.3% gap, under the 5% floor.
	ev, err := calc.Evaluate(snap(38, 40, 120), yesSignal(0.55), testNow)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonStrikeGapTooSmall, ev.Reason)
}

func TestMinEdgeForRegimes(t *testing.T) {
	cfg := testCalcConfig()
	cfg.DynamicMinEdge = true
	calc, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, 0.07, calc.MinEdgeFor(domain.RegimeTrending))
	assert.Equal(t, 0.15, calc.MinEdgeFor(domain.RegimeVolatile))
	assert.Equal(t, 0.12, calc.MinEdgeFor(domain.RegimeRanging))

	// Static configuration ignores the regime entirely.
	static, err := New(testCalcConfig())
	require.NoError(t, err)
	assert.Equal(t, 0.12, static.MinEdgeFor(domain.RegimeTrending))
}

func TestMinEdgeForBounds(t *testing.T) {
	cfg := testCalcConfig()
	cfg.DynamicMinEdge = true
	cfg.MinEdgeTrending = 0.01
	cfg.MinEdgeVolatile = 0.50
	calc, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, 0.05, calc.MinEdgeFor(domain.RegimeTrending))
	assert.Equal(t, 0.20, calc.MinEdgeFor(domain.RegimeVolatile))
}
