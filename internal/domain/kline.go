package domain

import "time"

// Kline is a single candlestick of the underlying price series. The
// estimator only consumes closes, but the full candle is kept so that
// volatility work on ranges stays possible.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Symbol    string  // Underlying symbol (e.g. "BTCUSDT")
	Interval  string  // Candle interval (e.g. "1h")
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Closes extracts the close series from a candle window, oldest first.
func Closes(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}
