// clock.go abstracts timers so reconnect backoff can be driven by a fake
// clock in tests instead of real delays.

package engine

import "time"

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// timer from firing.
	Stop() bool
}

// Clock produces timers and delay channels.
type Clock interface {
	// After returns a channel that delivers after d.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules f to run after d.
	AfterFunc(d time.Duration, f func()) Timer
}

// realClock is the production Clock backed by the time package.
type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
