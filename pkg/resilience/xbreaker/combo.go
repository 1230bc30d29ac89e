package xbreaker

import (
	"context"
	"fmt"

	"github.com/faultline/faultline/pkg/resilience/xretry"
)

// BreakerRetryer combines a breaker and a retryer for stronger fault
// tolerance:
//   - the breaker fails fast to prevent cascading failure
//   - the retryer absorbs transient failures to improve success rate
//   - every retry attempt is observed and counted by the breaker
//
// Execution flow:
//  1. The request enters the retryer.
//  2. Every retry attempt passes through the breaker.
//  3. If the breaker is open, the error is returned immediately and
//     retrying stops.
//  4. If Closed/HalfOpen, the operation runs.
//  5. Every attempt's outcome (success/failure) is recorded by the breaker.
//  6. Consecutive failures may trip the breaker mid-retry, blocking further
//     attempts.
//
// Contrast with RetryThenBreak:
//   - BreakerRetryer: every retry passes through the breaker, so
//     consecutive failures can trip it mid-sequence.
//   - RetryThenBreak: retries don't affect the breaker; only the final
//     result is recorded.
type BreakerRetryer struct {
	breaker *Breaker
	retryer *xretry.Retryer
}

// NewBreakerRetryer creates a breaker+retry combo executor.
//
// Returns an error if breaker or retryer is nil.
//
// Example:
//
//	breaker := xbreaker.NewBreaker("my-service",
//	    xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)),
//	)
//	retryer := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff()),
//	)
//
//	combo, err := xbreaker.NewBreakerRetryer(breaker, retryer)
func NewBreakerRetryer(breaker *Breaker, retryer *xretry.Retryer) (*BreakerRetryer, error) {
	if breaker == nil {
		return nil, ErrNilBreaker
	}
	if retryer == nil {
		return nil, ErrNilRetryer
	}

	return &BreakerRetryer{
		breaker: breaker,
		retryer: retryer,
	}, nil
}

// DoWithRetry executes fn with both breaker and retry protection.
//
// Execution flow:
//  1. The retryer starts executing.
//  2. Every retry attempt passes through the breaker.
//  3. If the breaker is open, ErrOpenState is returned and retrying stops.
//  4. If Closed/HalfOpen, the operation runs.
//  5. Every attempt's outcome is recorded by the breaker.
//  6. If the breaker trips mid-retry, further attempts are blocked.
func (br *BreakerRetryer) DoWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	if br == nil {
		return ErrNilBreakerRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return br.retryer.Do(ctx, func(ctx context.Context) error {
		return br.breaker.Do(ctx, func() error {
			return fn(ctx)
		})
	})
}

// Breaker returns the underlying breaker.
func (br *BreakerRetryer) Breaker() *Breaker {
	return br.breaker
}

// Retryer returns the underlying retryer.
func (br *BreakerRetryer) Retryer() *xretry.Retryer {
	return br.retryer
}

// ExecuteWithRetry is the generic, value-returning form of
// BreakerRetryer.DoWithRetry. Every retry attempt passes through and is
// recorded by the breaker.
//
// fn does not receive a context; cancellation is only observed between
// retries. To react to cancellation inside the operation itself, capture
// ctx in the fn closure.
// br must not be nil; otherwise ErrNilBreakerRetryer is returned.
//
// Example:
//
//	combo, err := xbreaker.NewBreakerRetryer(breaker, retryer)
//
//	result, err := xbreaker.ExecuteWithRetry(ctx, combo, func() (string, error) {
//	    return callRemoteService()
//	})
func ExecuteWithRetry[T any](ctx context.Context, br *BreakerRetryer, fn func() (T, error)) (T, error) {
	var zero T
	if br == nil {
		return zero, ErrNilBreakerRetryer
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return xretry.DoWithResult(ctx, br.retryer, func(ctx context.Context) (T, error) {
		return Execute(ctx, br.breaker, fn)
	})
}

// DoWithRetrySimple is DoWithRetry with a simpler signature: fn doesn't
// take a context. Every retry attempt still passes through and is recorded
// by the breaker.
func (br *BreakerRetryer) DoWithRetrySimple(ctx context.Context, fn func() error) error {
	if br == nil {
		return ErrNilBreakerRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return br.retryer.Do(ctx, func(ctx context.Context) error {
		return br.breaker.Do(ctx, fn)
	})
}

// RetryThenBreak retries first and only reports the final result to the
// breaker (a "protective" composition).
//
// Unlike BreakerRetryer:
//   - the breaker's state is checked before retrying, and rejects
//     immediately if open
//   - intermediate retry failures are not recorded
//   - only the final outcome is recorded
//
// Use this when transient failures during retry should not affect breaker
// statistics, while still wanting the breaker's request-blocking
// protection.
type RetryThenBreak struct {
	retryer *xretry.Retryer
	breaker *Breaker
	tscb    *TwoStepCircuitBreaker[any] // drives the Allow/Done pattern
}

// NewRetryThenBreak creates a retry-then-break executor.
//
// Contrast with BreakerRetryer:
//   - BreakerRetryer: every retry passes through the breaker, so
//     consecutive failures can trip it mid-sequence.
//   - RetryThenBreak: retries don't affect breaker statistics; only the
//     final result is recorded.
//
// Both share:
//   - the breaker's state is checked before executing
//   - an open breaker blocks the request
//
// Important: this constructor only reuses breaker's configuration
// (TripPolicy, SuccessPolicy, Timeout, etc.), not its live state. An
// independent TwoStepCircuitBreaker is created starting from Closed.
// If the passed-in breaker is already Open, RetryThenBreak still allows
// requests through. For a fully independent instance, prefer
// NewRetryThenBreakWithConfig.
//
// The Breaker() getter's returned instance is only useful for reading
// configuration; its State()/Counts() are not kept in sync with
// RetryThenBreak's internal breaker state.
func NewRetryThenBreak(retryer *xretry.Retryer, breaker *Breaker) (*RetryThenBreak, error) {
	if retryer == nil {
		return nil, ErrNilRetryer
	}
	if breaker == nil {
		return nil, ErrNilBreaker
	}

	// Build a TwoStep breaker with the same settings: configuration only,
	// not state.
	tscb := NewTwoStepCircuitBreaker[any](breaker.buildSettings())

	return &RetryThenBreak{
		retryer: retryer,
		breaker: breaker,
		tscb:    tscb,
	}, nil
}

// NewRetryThenBreakWithConfig creates a retry-then-break executor directly
// from configuration options, avoiding the state-confusion risk of reusing
// an existing Breaker instance.
//
// Example:
//
//	rtb := xbreaker.NewRetryThenBreakWithConfig(
//	    "my-service",
//	    retryer,
//	    xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)),
//	    xbreaker.WithTimeout(30 * time.Second),
//	)
func NewRetryThenBreakWithConfig(name string, retryer *xretry.Retryer, opts ...BreakerOption) (*RetryThenBreak, error) {
	if retryer == nil {
		return nil, ErrNilRetryer
	}

	// A throwaway Breaker, used only to derive settings.
	breaker := NewBreaker(name, opts...)

	tscb := NewTwoStepCircuitBreaker[any](breaker.buildSettings())

	return &RetryThenBreak{
		retryer: retryer,
		breaker: breaker,
		tscb:    tscb,
	}, nil
}

// Do executes fn.
//
// Execution flow:
//  1. Check the breaker's state; if open, return ErrOpenState immediately.
//  2. Run fn through the retryer (retries are not recorded to the
//     breaker).
//  3. Record the final outcome (success or failure, per SuccessPolicy) to
//     the breaker.
//
// Even on panic, a deferred recover ensures the breaker's counts are still
// updated (recorded as a failure).
func (rtb *RetryThenBreak) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if rtb == nil {
		return ErrNilRetryThenBreak
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Check breaker state first via the TwoStep Allow/Done pattern.
	done, cbErr := rtb.tscb.Allow()
	if cbErr != nil {
		// Wrapping makes Retryable() return false, so an outer retry
		// doesn't retry a rejection the breaker already made.
		return wrapBreakerError(cbErr, rtb.breaker.name)
	}

	// defer guarantees done is always called, even on panic. Otherwise a
	// HalfOpen request slot would leak and later calls would see
	// ErrTooManyRequests indefinitely.
	var err error
	defer func() {
		if r := recover(); r != nil {
			done(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		// gobreaker v2: done(nil) is success, done(err) is failure.
		done(rtb.toResultError(err))
	}()

	err = rtb.retryer.Do(ctx, fn)

	return err
}

// Breaker returns the Breaker used for configuration.
//
// Its state is not kept in sync with the internal TwoStepCircuitBreaker;
// use State() and Counts() for the actual live state.
func (rtb *RetryThenBreak) Breaker() *Breaker {
	return rtb.breaker
}

// Retryer returns the underlying retryer.
func (rtb *RetryThenBreak) Retryer() *xretry.Retryer {
	return rtb.retryer
}

// State returns the breaker's current state.
func (rtb *RetryThenBreak) State() State {
	return rtb.tscb.State()
}

// Counts returns the current window's statistics.
func (rtb *RetryThenBreak) Counts() Counts {
	return rtb.tscb.Counts()
}

// toResultError converts a policy judgment into the error value
// gobreaker v2's done callback expects:
//   - done(nil) means success
//   - done(err) means failure (or exclusion)
//
// ExcludePolicy is checked before SuccessPolicy, matching gobreaker's own
// internal afterRequest priority (isExcluded before isSuccessful). Doing
// it in the other order would let SuccessPolicy convert an excluded error
// to nil, bypassing gobreaker's exclusion and wrongly counting it as a
// success.
func (rtb *RetryThenBreak) toResultError(err error) error {
	// Pass excluded errors through unchanged, letting gobreaker exclude
	// them from counts entirely.
	if rtb.breaker.IsExcluded(err) {
		return err
	}
	if rtb.breaker.IsSuccessful(err) {
		return nil
	}
	if err != nil {
		return err
	}
	// err is nil but SuccessPolicy still judged this a failure. Shouldn't
	// normally happen; return a placeholder to be safe.
	return errFailedByPolicy
}

// ExecuteRetryThenBreak is the generic, value-returning form of
// RetryThenBreak.Do.
//
// Even on panic, a deferred recover ensures the breaker's counts are still
// updated (recorded as a failure).
// rtb must not be nil; otherwise ErrNilRetryThenBreak is returned.
func ExecuteRetryThenBreak[T any](ctx context.Context, rtb *RetryThenBreak, fn func() (T, error)) (T, error) {
	var zero T

	if rtb == nil {
		return zero, ErrNilRetryThenBreak
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	done, cbErr := rtb.tscb.Allow()
	if cbErr != nil {
		return zero, wrapBreakerError(cbErr, rtb.breaker.name)
	}

	var result T
	var err error
	defer func() {
		if r := recover(); r != nil {
			done(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		done(rtb.toResultError(err))
	}()

	result, err = xretry.DoWithResult(ctx, rtb.retryer, func(_ context.Context) (T, error) {
		return fn()
	})

	return result, err
}
