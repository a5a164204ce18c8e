package signal

import (
	"context"
	"fmt"
	"math"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

// Config holds the tunable parameters of the signal estimator.
type Config struct {
	// Momentum lookbacks in candles, shortest to longest.
	ShortLookback  int // e.g. 1
	MediumLookback int // e.g. 4
	LongLookback   int // e.g. 24

	// Weights for combining the momentum windows. Should sum to 1.
	ShortWeight  float64 // e.g. 0.5
	MediumWeight float64 // e.g. 0.3
	LongWeight   float64 // e.g. 0.2

	// Regime classification bands.
	VolatileVolThreshold float64 // per-candle stddev of log returns, e.g. 0.02
	TrendingMomThreshold float64 // absolute combined momentum, e.g. 0.3
}

// Estimator computes momentum, volatility and regime from the underlying
// price window and asks the configured model for a YES probability.
type Estimator struct {
	cfg        Config
	forecaster ports.Forecaster
	logger     ports.Logger
}

// New creates a signal estimator. The forecaster is pluggable; see
// NewLogNormalForecaster for the default model.
func New(cfg Config, forecaster ports.Forecaster, logger ports.Logger) (*Estimator, error) {
	if forecaster == nil {
		return nil, fmt.Errorf("forecaster is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.ShortLookback <= 0 || cfg.MediumLookback <= cfg.ShortLookback || cfg.LongLookback <= cfg.MediumLookback {
		return nil, fmt.Errorf("momentum lookbacks must be positive and strictly increasing")
	}
	return &Estimator{cfg: cfg, forecaster: forecaster, logger: logger}, nil
}

// RequiredHistory returns the minimum number of closes Estimate needs.
func (e *Estimator) RequiredHistory() int {
	return e.cfg.LongLookback + 1
}

// Estimate produces the signal for one market from the underlying close
// series (oldest first) and an external sentiment scalar.
// A model probability of 0, 1, outside (0, 1) or NaN is a hard error:
// such values would make Kelly sizing divide by zero or bet the entire
// bankroll, so the cycle must be skipped, never clamped.
func (e *Estimator) Estimate(ctx context.Context, snapshot *domain.MarketSnapshot, closes []float64, sentiment float64) (*domain.Signal, error) {
	if len(closes) < e.RequiredHistory() {
		return nil, fmt.Errorf("%w: have %d closes, need %d", ports.ErrInsufficientHistory, len(closes), e.RequiredHistory())
	}

	momentum := e.momentum(closes)
	volatility := realizedVolatility(closes)
	regime := e.classifyRegime(momentum, volatility)

	prob, err := e.forecaster.Forecast(snapshot, ports.ForecastInput{
		Momentum:   momentum,
		Volatility: volatility,
		Sentiment:  sentiment,
		Regime:     regime,
	})
	if err != nil {
		return nil, fmt.Errorf("forecast for %s: %w", snapshot.Ticker, err)
	}
	if math.IsNaN(prob) || prob <= 0 || prob >= 1 {
		return nil, fmt.Errorf("%w: got %v for %s", ports.ErrForecastOutOfRange, prob, snapshot.Ticker)
	}

	e.logger.Debug(ctx, "signal estimated", map[string]interface{}{
		"ticker":     snapshot.Ticker,
		"ourProb":    prob,
		"momentum":   momentum,
		"volatility": volatility,
		"regime":     regime,
	})

	return &domain.Signal{
		OurProb:    prob,
		Momentum:   momentum,
		Volatility: volatility,
		Sentiment:  sentiment,
		Regime:     regime,
	}, nil
}

// momentum combines smoothed rate of change over three windows into a
// signed strength in [-1, 1]. Each window contributes its direction scaled
// by how decisive the move was; aligned windows get a small boost.
func (e *Estimator) momentum(closes []float64) float64 {
	short := windowMomentum(closes, e.cfg.ShortLookback)
	medium := windowMomentum(closes, e.cfg.MediumLookback)
	long := windowMomentum(closes, e.cfg.LongLookback)

	combined := short*e.cfg.ShortWeight + medium*e.cfg.MediumWeight + long*e.cfg.LongWeight

	// All three windows pointing the same way is a stronger signal than
	// the weighted sum alone suggests.
	if (short > 0 && medium > 0 && long > 0) || (short < 0 && medium < 0 && long < 0) {
		combined *= 1.2
	}

	return clamp(combined, -1, 1)
}

// windowMomentum is the signed strength of the move over one lookback:
// direction times min(1, |pct change| * 20), so a 5% move saturates.
func windowMomentum(closes []float64, lookback int) float64 {
	n := len(closes)
	prev := closes[n-1-lookback]
	if prev == 0 {
		return 0
	}
	pct := (closes[n-1] - prev) / prev
	strength := math.Min(1, math.Abs(pct)*20)
	if pct < 0 {
		return -strength
	}
	return strength
}

// realizedVolatility is the sample stddev of log returns over the window.
func realizedVolatility(closes []float64) float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(returns)-1))
}

// classifyRegime buckets the market: high volatility dominates, then a
// decisive momentum reading means trending, otherwise ranging.
func (e *Estimator) classifyRegime(momentum, volatility float64) domain.Regime {
	if volatility > e.cfg.VolatileVolThreshold {
		return domain.RegimeVolatile
	}
	if math.Abs(momentum) > e.cfg.TrendingMomThreshold {
		return domain.RegimeTrending
	}
	return domain.RegimeRanging
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
