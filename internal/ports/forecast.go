package ports

import "kalshiEdgeBot/internal/domain"

// ForecastInput bundles the features a probability model may use.
type ForecastInput struct {
	Momentum   float64
	Volatility float64
	Sentiment  float64
	Regime     domain.Regime
}

// Forecaster produces the probability that a market resolves YES. The
// model is pluggable; callers must treat any value at or outside the open
// interval (0, 1) as a hard error, never clamp it.
type Forecaster interface {
	Forecast(snapshot *domain.MarketSnapshot, input ForecastInput) (float64, error)
}
