package domain

// Side represents the side of a binary market contract (YES or NO).
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// IsValid reports whether the side is a recognised value.
func (s Side) IsValid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side of the contract.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// DecisionOutcome classifies what the engine did with a trade candidate.
type DecisionOutcome string

const (
	OutcomeAccepted DecisionOutcome = "accepted"
	OutcomeRejected DecisionOutcome = "rejected"
)

// ResultStatus is the settlement state of a trade. A trade starts as
// pending and transitions exactly once to won or lost.
type ResultStatus string

const (
	ResultPending ResultStatus = "pending"
	ResultWon     ResultStatus = "won"
	ResultLost    ResultStatus = "lost"
)

// Regime classifies the recent behaviour of the underlying price series.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeVolatile Regime = "volatile"
)

// Stable rejection reason strings. These are written verbatim to the ledger
// and exposed on the query surface, so they must not be reworded casually.
const (
	ReasonEdgeBelowThreshold = "edge below threshold"
	ReasonCircuitBreaker     = "circuit breaker active"
	ReasonBelowMinimumLot    = "size below minimum lot"
	ReasonStaleDecision      = "stale decision — latency exceeded"
	ReasonExposureCeiling    = "exposure ceiling reached"
	ReasonDailyLossCap       = "daily loss cap reached"
	ReasonMaxOpenPositions   = "max open positions reached"
	ReasonOrderOutstanding   = "order already outstanding for ticker"
	ReasonTooCloseToExpiry   = "too close to expiry"
	ReasonTooFarFromExpiry   = "too far from expiry"
	ReasonStrikeGapTooSmall  = "strike gap below minimum"
)
