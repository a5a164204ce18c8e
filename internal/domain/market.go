package domain

import "time"

// MarketSnapshot is a point-in-time view of a single binary contract,
// stamped with the capture time so downstream stages can enforce freshness.
type MarketSnapshot struct {
	Ticker          string    // Contract ticker (e.g. "KXBTCD-25AUG3017-T110250")
	Underlying      string    // Underlying symbol the strike references (e.g. "BTCUSDT")
	Strike          float64   // Settlement threshold of the contract
	UnderlyingPrice float64   // Spot price of the underlying at capture
	YesBidCents     int64     // Best bid for YES, in cents
	YesAskCents     int64     // Best ask for YES, in cents
	ExpiryTime      time.Time // When the contract settles
	CapturedAt      time.Time // When this snapshot was taken
}

// PriceCents returns the effective entry price for the given side.
// Buying YES pays the ask; buying NO pays 100 minus the YES bid.
func (m *MarketSnapshot) PriceCents(side Side) int64 {
	if side == SideYes {
		return m.YesAskCents
	}
	return 100 - m.YesBidCents
}

// MinutesToExpiry returns the remaining lifetime of the contract at the
// given instant.
func (m *MarketSnapshot) MinutesToExpiry(now time.Time) float64 {
	return m.ExpiryTime.Sub(now).Minutes()
}

// Age returns how old the snapshot is at the given instant.
func (m *MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(m.CapturedAt)
}

// StrikeGapPct returns the relative distance between the underlying spot
// price and the strike, as a fraction of spot.
func (m *MarketSnapshot) StrikeGapPct() float64 {
	if m.UnderlyingPrice == 0 {
		return 0
	}
	gap := m.Strike - m.UnderlyingPrice
	if gap < 0 {
		gap = -gap
	}
	return gap / m.UnderlyingPrice
}
