package risk

import "time"

// Checker is consulted before every position decision
type Checker interface {
	// ShouldForceExit reports whether the open position must be closed now
	ShouldForceExit(price, capital float64, now time.Time) (bool, Reason)

	// EntryAllowed reports whether a new position may be opened
	EntryAllowed(capital float64, now time.Time) bool
}
