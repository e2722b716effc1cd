// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock implements monitor.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time truncated to the second, in UTC.
// Persisted timestamps round-trip through sqlite and JSON at that precision.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
