// Package clock provides the monotonic time base and deadline based poll
// timers. Nothing in here blocks: a PollTimer is armed once and then queried
// on every pass of the event loop.
package clock

import "time"

// Clock is a monotonic time source. The epoch is arbitrary.
type Clock interface {
	Now() time.Duration
}

// PollTimer is a deadline that is checked by polling.
type PollTimer struct {
	deadline time.Duration
}

// SetAfter arms the timer to expire d after the current time of c.
func (t *PollTimer) SetAfter(c Clock, d time.Duration) {
	t.deadline = c.Now() + d
}

// Expired reports whether the deadline has passed.
func (t *PollTimer) Expired(c Clock) bool {
	return c.Now()-t.deadline >= 0
}

// Deadline returns the time at which the timer expires.
func (t *PollTimer) Deadline() time.Duration {
	return t.deadline
}

// Manual is a Clock that only advances when told to. Use it in tests and
// simulations.
type Manual struct {
	now time.Duration
}

func (m *Manual) Now() time.Duration {
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	if d > 0 {
		m.now += d
	}
}
