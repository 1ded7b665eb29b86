// Package system provides the wall-clock implementation of crawler.Clock.
// Tests substitute a fixed clock so event timestamps stay deterministic.
package system

import "time"

// Clock reads the system time in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
