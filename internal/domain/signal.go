package domain

// Signal is the estimator's read of a single market: our probability that
// the contract resolves YES, plus the context features that produced it.
type Signal struct {
	OurProb    float64 // Estimated probability the contract resolves YES, strictly in (0, 1)
	Momentum   float64 // Weighted multi-window rate of change of the underlying, signed
	Volatility float64 // Rolling stddev of log returns of the underlying, per candle
	Sentiment  float64 // Bounded external sentiment scalar, 0 when unavailable
	Regime     Regime  // Market regime classification
}

// ProbFor returns our probability that the given side wins.
func (s *Signal) ProbFor(side Side) float64 {
	if side == SideYes {
		return s.OurProb
	}
	return 1 - s.OurProb
}
