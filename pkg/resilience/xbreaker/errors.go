package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

// errFailedByPolicy is a placeholder used when SuccessPolicy judges a nil
// error as a failure. An edge case: the operation itself didn't error, but
// the policy still counts it as one.
var errFailedByPolicy = errors.New("xbreaker: operation marked as failed by success policy")

// Argument validation errors.
var (
	ErrNilBreaker        = errors.New("xbreaker: breaker cannot be nil")
	ErrNilRetryer        = errors.New("xbreaker: retryer cannot be nil")
	ErrNilBreakerRetryer = errors.New("xbreaker: breaker-retryer cannot be nil")
	ErrNilRetryThenBreak = errors.New("xbreaker: retry-then-break cannot be nil")
	ErrNilContext        = errors.New("xbreaker: context cannot be nil")
	ErrNilFunc           = errors.New("xbreaker: function cannot be nil")
	ErrNilManagedBreaker = errors.New("xbreaker: managed breaker cannot be nil")
)

// BreakerError wraps a gobreaker error (ErrOpenState, ErrTooManyRequests)
// and implements Retryable() returning false, so xretry never retries it.
//
// Without this, a breaker nested inside a retry loop would keep backing
// off and retrying a call the breaker has already rejected. The breaker
// should fail fast instead.
//
// Err/Name/State stay exported, unlike xretry's unexported-field style,
// because BreakerError is typically read directly for logging and alerts
// rather than only walked via errors.Unwrap.
type BreakerError struct {
	Err   error
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

func (e *BreakerError) Unwrap() error {
	return e.Err
}

func (e *BreakerError) Retryable() bool {
	return false
}

func newBreakerError(err error, name string, state State) *BreakerError {
	return &BreakerError{
		Err:   err,
		Name:  name,
		State: state,
	}
}

// IsolatedError is returned when a call is rejected because the breaker was
// manually Isolate()'d.
type IsolatedError struct {
	Name string
}

func (e *IsolatedError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: isolated", e.Name)
	}
	return "xbreaker: isolated"
}

func (e *IsolatedError) Retryable() bool { return false }

// wrapBreakerError wraps err if it's a breaker error, otherwise returns it
// unchanged.
//
// Only the direct sentinel errors (ErrOpenState, ErrTooManyRequests) are
// checked, not errors.Is walking the whole chain, so a nested breaker's
// error is never misattributed to the outer one.
//
// If err is already a BreakerError, it's returned as-is to preserve the
// original source of the error.
//
// The resulting state is derived from the error type (ErrOpenState ->
// StateOpen, ErrTooManyRequests -> StateHalfOpen) rather than a live
// State() query, to avoid a TOCTOU race: between cb.Execute returning and
// a caller calling State(), another goroutine could have changed the
// breaker's state, making a live-queried State inconsistent with the state
// at the moment the error actually occurred.
func wrapBreakerError(err error, name string) error {
	if err == nil {
		return nil
	}

	var be *BreakerError
	if errors.As(err, &be) {
		return err
	}

	if err == gobreaker.ErrOpenState {
		return newBreakerError(err, name, StateOpen)
	}
	if err == gobreaker.ErrTooManyRequests {
		return newBreakerError(err, name, StateHalfOpen)
	}

	return err
}

// IsOpen reports whether err is a breaker-open rejection.
//
// Example:
//
//	result, err := xbreaker.Execute(ctx, breaker, fn)
//	if xbreaker.IsOpen(err) {
//	    return fallbackValue, nil
//	}
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}

// IsTooManyRequests reports whether err is a HalfOpen-throttling rejection.
//
// Example:
//
//	result, err := xbreaker.Execute(ctx, breaker, fn)
//	if xbreaker.IsTooManyRequests(err) {
//	    time.Sleep(100 * time.Millisecond)
//	    return retry()
//	}
func IsTooManyRequests(err error) bool {
	return errors.Is(err, gobreaker.ErrTooManyRequests)
}

// IsBreakerError reports whether err is any breaker rejection (Open or
// HalfOpen throttling), letting callers distinguish breaker rejections
// from business errors.
func IsBreakerError(err error) bool {
	return IsOpen(err) || IsTooManyRequests(err)
}

// IsRecoverable reports whether err is a breaker rejection a caller can
// reasonably wait out and retry later, as opposed to a business error the
// breaker had nothing to do with.
//
// Example:
//
//	if xbreaker.IsRecoverable(err) {
//	    time.Sleep(backoff)
//	    return retry()
//	}
func IsRecoverable(err error) bool {
	return IsBreakerError(err)
}
