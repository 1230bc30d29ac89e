// Package xclock provides the injectable time source used in
// pkg/resilience for the retry delay, the hedging delay, and the elapsed
// time the timeout strategy reports. The timeout deadline itself, the
// circuit breakers, the bulkhead and the cache run on the wall clock.
//
// Clock is a thin alias over jonboulle/clockwork rather than a hand-rolled
// interface: clockwork already ships a real clock and a fully-featured
// fake clock with Advance/BlockUntil, which is exactly what deterministic,
// sleep-free tests need.
package xclock

import "github.com/jonboulle/clockwork"

// Clock abstracts time so a strategy that takes one can be driven by a
// FakeClock in tests.
type Clock = clockwork.Clock

// FakeClock is a controllable Clock for deterministic tests.
type FakeClock = *clockwork.FakeClock

// NewRealClock returns the wall-clock implementation used in production.
func NewRealClock() Clock {
	return clockwork.NewRealClock()
}

// NewFakeClock returns a FakeClock fixed at an arbitrary, non-zero instant.
// Tests advance it explicitly with Advance/AdvanceCondCheck rather than
// sleeping.
func NewFakeClock() FakeClock {
	return clockwork.NewFakeClock()
}
