// Package clock abstracts "now" so slot-boundary logic stays testable.
package clock

import "time"

// Clock supplies the current instant and the current calendar date.
type Clock interface {
	Now() time.Time
	// Today returns the current date truncated to midnight UTC.
	Today() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (s System) Today() time.Time {
	now := s.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Fixed is a clock pinned to a single instant, for tests.
type Fixed struct {
	Instant time.Time
}

func (f Fixed) Now() time.Time { return f.Instant }

func (f Fixed) Today() time.Time {
	return time.Date(f.Instant.Year(), f.Instant.Month(), f.Instant.Day(), 0, 0, 0, 0, time.UTC)
}
