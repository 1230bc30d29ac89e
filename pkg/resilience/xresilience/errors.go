package xresilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors used for equality checks (errors.Is) independent of the
// wrapping types below. Mirrors XKit xbreaker/xretry's convention of a
// package-level sentinel plus a wrapping struct carrying context.
var (
	// ErrBrokenCircuit classifies a BrokenCircuitError.
	ErrBrokenCircuit = errors.New("xresilience: circuit is open")
	// ErrIsolatedCircuit classifies an IsolatedCircuitError.
	ErrIsolatedCircuit = errors.New("xresilience: circuit is isolated")
	// ErrTimeoutRejected classifies a TimeoutRejectedError.
	ErrTimeoutRejected = errors.New("xresilience: operation timed out")
	// ErrBulkheadRejected classifies a BulkheadRejectedError.
	ErrBulkheadRejected = errors.New("xresilience: bulkhead capacity exceeded")
	// ErrOperationCanceled classifies an OperationCanceledError.
	ErrOperationCanceled = errors.New("xresilience: operation canceled")
	// ErrRateLimited classifies a RateLimitedError. Not one of the eight
	// core taxonomy members named by the source design — an addition for
	// the rate-limiter adapter strategy (see pkg/resilience/xlimit).
	ErrRateLimited = errors.New("xresilience: rate limit exceeded")

	// ErrDisposed is returned by manual circuit control (Isolate/Close)
	// after the owning controller has been disposed.
	ErrDisposed = errors.New("xresilience: control handle disposed")

	// ErrBuilderReused is a programmer error: Build was already called on
	// this Builder.
	ErrBuilderReused = errors.New("xresilience: builder already built")
	// ErrDuplicateStrategy is a programmer error: the same strategy
	// instance was added twice.
	ErrDuplicateStrategy = errors.New("xresilience: duplicate strategy")
)

// BrokenCircuitError is returned when a call is rejected because its
// circuit breaker is Open. It carries the outcome that most recently
// tripped or renewed the breaker.
type BrokenCircuitError struct {
	Name           string
	LastHandledErr error
}

func (e *BrokenCircuitError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("xresilience: circuit %q is open: %v", e.Name, e.LastHandledErr)
	}
	return fmt.Sprintf("xresilience: circuit is open: %v", e.LastHandledErr)
}

func (e *BrokenCircuitError) Unwrap() error { return ErrBrokenCircuit }

// IsolatedCircuitError is returned when a call is rejected because its
// circuit breaker was manually isolated.
type IsolatedCircuitError struct {
	Name string
}

func (e *IsolatedCircuitError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("xresilience: circuit %q is isolated", e.Name)
	}
	return "xresilience: circuit is isolated"
}

func (e *IsolatedCircuitError) Unwrap() error { return ErrIsolatedCircuit }

// TimeoutRejectedError is returned when a deadline elapses before the
// underlying operation completes.
type TimeoutRejectedError struct {
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutRejectedError) Error() string {
	return fmt.Sprintf("xresilience: timed out after %s (limit %s)", e.Elapsed, e.Timeout)
}

func (e *TimeoutRejectedError) Unwrap() error { return ErrTimeoutRejected }

// BulkheadRejectedError is returned when a bulkhead's permits and queue are
// both full.
type BulkheadRejectedError struct {
	MaxParallelization int
	MaxQueuing         int
}

func (e *BulkheadRejectedError) Error() string {
	return fmt.Sprintf("xresilience: bulkhead full (parallelization=%d, queue=%d)", e.MaxParallelization, e.MaxQueuing)
}

func (e *BulkheadRejectedError) Unwrap() error { return ErrBulkheadRejected }

// OperationCanceledError is returned when cancellation is observed instead
// of a normal outcome, including cancellation observed before the callback
// ever ran.
type OperationCanceledError struct {
	Cause error
}

func (e *OperationCanceledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("xresilience: operation canceled: %v", e.Cause)
	}
	return "xresilience: operation canceled"
}

func (e *OperationCanceledError) Unwrap() error { return ErrOperationCanceled }

// RateLimitedError is returned by the rate-limiter adapter strategy.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("xresilience: rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// ValidationError aggregates every constraint violated by an Options struct
// at build time, so callers see the whole problem in one error instead of
// fixing violations one at a time. This is the "structured error
// enumerating violated constraints" the option-validation surface calls
// for, without a generic validation framework behind it.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("xresilience: invalid options: %s", e.Violations[0])
	}
	msg := fmt.Sprintf("xresilience: invalid options (%d violations):", len(e.Violations))
	for _, v := range e.Violations {
		msg += "\n  - " + v
	}
	return msg
}

// Add records a violation and returns the receiver, for fluent chaining in
// a strategy's Validate method.
func (e *ValidationError) Add(format string, args ...any) *ValidationError {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
	return e
}

// HasViolations reports whether any constraint was violated.
func (e *ValidationError) HasViolations() bool {
	return e != nil && len(e.Violations) > 0
}

// ErrOrNil returns e as an error if it has violations, or nil otherwise —
// the idiomatic way for a Validate method to return `(*ValidationError, error)`
// collapsed to a single error return.
func (e *ValidationError) ErrOrNil() error {
	if e.HasViolations() {
		return e
	}
	return nil
}
