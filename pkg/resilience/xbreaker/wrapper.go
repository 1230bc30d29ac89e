package xbreaker

import (
	"github.com/sony/gobreaker/v2"
)

// These aliases expose sony/gobreaker/v2's native surface directly, so
// callers can reach for the underlying API without a separate import.
type (
	// Settings configures a gobreaker.CircuitBreaker.
	Settings = gobreaker.Settings

	// Counts is the statistics window a TripPolicy inspects.
	Counts = gobreaker.Counts

	// State is a circuit breaker state.
	State = gobreaker.State

	// CircuitBreaker is the generic gobreaker breaker.
	CircuitBreaker[T any] = gobreaker.CircuitBreaker[T]

	// TwoStepCircuitBreaker is for callers that report success/failure
	// manually instead of passing a function to Execute.
	TwoStepCircuitBreaker[T any] = gobreaker.TwoStepCircuitBreaker[T]
)

// Circuit breaker states.
const (
	// StateClosed: normal operation, requests pass through and failures
	// are counted.
	StateClosed = gobreaker.StateClosed

	// StateHalfOpen: probing. A limited number of requests are let through
	// to check whether the downstream has recovered.
	StateHalfOpen = gobreaker.StateHalfOpen

	// StateOpen: tripped. Requests fail immediately without reaching the
	// backend.
	StateOpen = gobreaker.StateOpen

	// StateIsolated is xbreaker's own addition, not part of gobreaker's
	// native state machine: the breaker was forced open via Isolate() and
	// stays that way until Close(), ignoring counts entirely. Chosen as -1
	// so it never collides with a future gobreaker state value.
	StateIsolated State = -1
)

// Breaker errors.
var (
	// ErrTooManyRequests: too many requests while HalfOpen.
	ErrTooManyRequests = gobreaker.ErrTooManyRequests

	// ErrOpenState: the breaker is Open.
	ErrOpenState = gobreaker.ErrOpenState
)

// NewCircuitBreaker creates a generic breaker directly, for callers that
// want full control over gobreaker's configuration.
//
// Example:
//
//	cb := xbreaker.NewCircuitBreaker[string](xbreaker.Settings{
//	    Name:        "my-service",
//	    MaxRequests: 3,
//	    Timeout:     30 * time.Second,
//	    ReadyToTrip: func(counts xbreaker.Counts) bool {
//	        return counts.ConsecutiveFailures >= 5
//	    },
//	})
//
//	result, err := cb.Execute(func() (string, error) {
//	    return callRemoteService()
//	})
func NewCircuitBreaker[T any](st Settings) *CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](st)
}

// NewTwoStepCircuitBreaker creates a two-step breaker, for scenarios that
// need to report success/failure manually: async operations, or a custom
// success judgment made after the fact.
//
// Example:
//
//	cb := xbreaker.NewTwoStepCircuitBreaker[string](xbreaker.Settings{
//	    Name: "async-service",
//	})
//
//	done, err := cb.Allow()
//	if err != nil {
//	    return err
//	}
//
//	result, err := doAsyncOperation()
//	done(err)
func NewTwoStepCircuitBreaker[T any](st Settings) *TwoStepCircuitBreaker[T] {
	return gobreaker.NewTwoStepCircuitBreaker[T](st)
}

// StateString returns the string form of a state.
//
// State already has a String() method; this wrapper exists for contexts
// like text/template that can't call a method directly on a value.
func StateString(s State) string {
	if s == StateIsolated {
		return "isolated"
	}
	return s.String()
}
