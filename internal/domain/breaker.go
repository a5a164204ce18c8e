package domain

import "time"

// CircuitBreakerState tracks consecutive settlement losses and the
// trading halt they can trigger.
type CircuitBreakerState struct {
	ConsecutiveLosses int
	Tripped           bool
	CooldownUntil     time.Time
}

// Active reports whether the breaker blocks trading at the given instant.
func (c *CircuitBreakerState) Active(now time.Time) bool {
	return c.Tripped && now.Before(c.CooldownUntil)
}
