package domain

import "time"

// TradeDecision is the full record of one evaluated trade candidate,
// whether it was accepted or rejected. Every decision is appended to the
// ledger so the reasoning trail can be audited later.
type TradeDecision struct {
	ID              string          // UUID assigned at evaluation time
	Ticker          string
	Side            Side
	Action          string          // Entries are always buys; contracts are held to settlement
	Outcome         DecisionOutcome
	Reason          string          // Rejection reason, empty for accepted decisions
	OurProb         float64         // Probability the chosen side wins, per our model
	MarketProb      float64         // Probability implied by the entry price
	Edge            float64         // OurProb - MarketProb, signed
	MinEdge         float64         // Threshold in force when the decision was made
	PriceCents      int64           // Entry price per contract for the chosen side
	Contracts       int             // Sized contract count, 0 for rejections before sizing
	CostCents       int64           // Contracts * PriceCents
	BalanceCents    int64           // Account balance the sizing was based on
	Regime          Regime
	Momentum        float64         // Signed momentum strength behind the signal
	Volatility      float64         // Realized per-candle volatility behind the signal
	Sentiment       float64         // External sentiment bias fed to the model
	MinutesToExpiry float64         // Contract lifetime remaining at decision time
	LatencyMS       int64           // Snapshot-to-submission delay in milliseconds
	OrderStatus     OrderStatus     // Exchange answer, empty when no order went out
	DecidedAt       time.Time
}

// ActionBuy is the only order action the engine takes; positions are
// never sold back before settlement.
const ActionBuy = "buy"

// Accepted reports whether the decision resulted in an order submission.
func (d *TradeDecision) Accepted() bool {
	return d.Outcome == OutcomeAccepted
}

// MarketProbFromPrice converts an entry price in cents to the probability
// the market assigns the chosen side.
func MarketProbFromPrice(priceCents int64) float64 {
	return float64(priceCents) / 100.0
}
