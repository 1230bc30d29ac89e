// Package xtimeout bounds how long a pipeline stage is allowed to run.
//
// # Modes
//
// Optimistic mode derives a context.WithTimeout and calls next inline,
// trusting the wrapped operation to observe ctx.Done() and return promptly.
// It costs nothing beyond the timer itself, but an operation that ignores
// its context keeps running (and holding whatever resources it holds) past
// the deadline; the caller only stops waiting on it.
//
// Pessimistic mode runs next in a background goroutine and abandons it at
// the deadline: the calling goroutine returns TimeoutRejectedError without
// waiting for the operation to actually stop. This bounds the caller's wait
// even against code that never checks its context, at the cost of a
// goroutine per call and the operation continuing to run (and eventually
// writing its result into a channel nobody is listening to) after the
// caller has moved on. Grounded on the goroutine/buffered-channel
// abandonment pattern used for timeout wrapping in the broader resilience
// examples this module draws from.
//
// Prefer optimistic mode for operations that already thread ctx through to
// every blocking call (HTTP requests via net/http, database calls via
// database/sql, most of the standard library). Reach for pessimistic mode
// only when wrapping code that can't be trusted to respect cancellation.
package xtimeout
