// Package clock abstracts wall-clock time so latency and timestamps can be
// driven deterministically in tests.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the production clock. Times are returned in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// Stepper returns start on the first call and advances by step on every
// following call. Useful for asserting measured durations.
func Stepper(start time.Time, step time.Duration) Func {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}
