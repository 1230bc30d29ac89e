// Package xhedge runs speculative duplicate attempts of a slow operation in
// parallel, taking whichever finishes first with an outcome the caller
// considers handled.
//
// # Design
//
// The first attempt starts immediately. Additional attempts start one at a
// time, each after a configurable delay if the previous attempt still
// hasn't produced a non-faulty outcome, up to MaxAttempts total. Each
// attempt runs against its own child context; the moment one attempt
// returns a non-faulty outcome, every other attempt's context is canceled
// so its goroutine can stop promptly, though (as with xtimeout's
// pessimistic mode) an attempt that ignores cancellation keeps running in
// the background and its result is simply discarded.
//
// A ResultPredicate decides which outcomes count as faults that should
// keep the race going; an attempt whose result the predicate accepts wins
// immediately. If every attempt's result is a fault, xhedge returns the
// last attempt to finish.
package xhedge
