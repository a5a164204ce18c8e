package signal

import (
	"fmt"
	"math"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

// LogNormalForecaster is the default probability model: the underlying is
// assumed log-normal over the remaining contract lifetime, with a small
// momentum tilt on top. It always returns a value inside (0, 1).
type LogNormalForecaster struct {
	// MomentumTilt scales how far momentum shifts the base probability.
	// A tilt of 0.1 moves the probability by at most 10 points at full
	// momentum saturation.
	MomentumTilt float64
}

// NewLogNormalForecaster creates the default model. A negative tilt is
// rejected; zero disables the momentum adjustment.
func NewLogNormalForecaster(momentumTilt float64) (*LogNormalForecaster, error) {
	if momentumTilt < 0 || momentumTilt > 0.25 {
		return nil, fmt.Errorf("momentum tilt %v out of range [0, 0.25]", momentumTilt)
	}
	return &LogNormalForecaster{MomentumTilt: momentumTilt}, nil
}

// Forecast returns P(underlying settles above strike).
// With per-candle volatility sigma_c and T candles to expiry, the horizon
// volatility is sigma_c * sqrt(T) and the log-normal drift correction
// subtracts half the variance.
func (f *LogNormalForecaster) Forecast(snapshot *domain.MarketSnapshot, input ports.ForecastInput) (float64, error) {
	if snapshot.UnderlyingPrice <= 0 || snapshot.Strike <= 0 {
		return 0, fmt.Errorf("non-positive spot %v or strike %v", snapshot.UnderlyingPrice, snapshot.Strike)
	}

	hoursLeft := snapshot.ExpiryTime.Sub(snapshot.CapturedAt).Hours()
	if hoursLeft <= 0 {
		return 0, fmt.Errorf("contract already expired at forecast time")
	}

	sigma := input.Volatility * math.Sqrt(hoursLeft)
	if sigma <= 0 {
		// Flat history: the spot either is or is not above the strike.
		if snapshot.UnderlyingPrice > snapshot.Strike {
			return 0.99, nil
		}
		return 0.01, nil
	}

	d := math.Log(snapshot.UnderlyingPrice/snapshot.Strike)/sigma - sigma/2
	prob := normCDF(d)

	prob += input.Momentum * f.MomentumTilt

	return clamp(prob, 0.01, 0.99), nil
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
