// Package clock abstracts wall-clock time and one-shot timers so that
// debounce, retry and keep-alive schedules can be driven deterministically
// in tests.
package clock

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running.  It reports false if the
	// callback already ran or the timer was already stopped.
	Stop() bool
}

// Clock is the time source used by the engine.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Real returns a Clock backed by package time.
func Real() Clock { return realClock{} }

// OrReal returns c, or the real clock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return realClock{}
	}
	return c
}

//Personal.AI order the ending
