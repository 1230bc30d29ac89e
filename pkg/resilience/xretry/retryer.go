package xretry

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// safeIntToUint converts an int to uint, mapping non-positive values to 0.
// Used to hand MaxAttempts (int) to retry-go's Attempts (uint).
func safeIntToUint(n int) uint {
	if n <= 0 {
		return 0
	}
	return uint(n)
}

// safeUintToInt converts a uint to int, clamping to math.MaxInt on overflow.
// Used to hand retry-go's attempt counter (uint) back to user callbacks.
func safeUintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}

var _ Executor = (*Retryer)(nil)

// Retryer executes an operation with retry.
//
// It composes a RetryPolicy and a BackoffPolicy into a single execution
// surface, built on avast/retry-go/v5. For the full retry-go feature set,
// obtain the underlying instance via Retrier().
type Retryer struct {
	retryPolicy   RetryPolicy
	backoffPolicy BackoffPolicy
	onRetry       func(attempt int, err error)
}

// RetryerOption configures a Retryer.
type RetryerOption func(*Retryer)

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.retryPolicy = p
		}
	}
}

// WithBackoffPolicy sets the backoff policy.
func WithBackoffPolicy(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoffPolicy = p
		}
	}
}

// WithOnRetry sets the retry callback. A nil value is silently ignored,
// consistent with WithRetryPolicy/WithBackoffPolicy.
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// NewRetryer creates a Retryer.
// Defaults to FixedRetry(3) and ExponentialBackoff.
//
// Returns *Retryer rather than the Executor interface because the generic
// DoWithResult function needs access to internal state. Callers that want
// a mockable dependency should declare it as Executor at the call site.
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		retryPolicy:   NewFixedRetry(3),
		backoffPolicy: NewExponentialBackoff(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do executes fn with retry.
//
// Backed by avast/retry-go/v5, bridged to the RetryPolicy/BackoffPolicy
// interfaces. A nil receiver returns ErrNilRetryer.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNilRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	opts := r.buildOptions(ctx)

	return retry.New(opts...).Do(func() error {
		return fn(ctx)
	})
}

// DoWithResult executes fn with retry, returning a value.
//
// This is a generic function and must be called at package scope.
// A nil r returns the zero value and ErrNilRetryer.
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	if r == nil {
		var zero T
		return zero, ErrNilRetryer
	}
	if ctx == nil {
		var zero T
		return zero, ErrNilContext
	}
	if fn == nil {
		var zero T
		return zero, ErrNilFunc
	}
	opts := r.buildOptions(ctx)

	return retry.NewWithData[T](opts...).Do(func() (T, error) {
		return fn(ctx)
	})
}

// buildOptions assembles retry-go options from the Retryer's state.
//
// Rebuilds the option slice on every call (roughly 440 B/op, 13 allocs/op),
// which is acceptable for retry workloads. Precomputing static options would
// cut allocations at the cost of concurrency-safety complexity that isn't
// worth it here.
func (r *Retryer) buildOptions(ctx context.Context) []Option {
	opts := make([]Option, 0, 6)

	opts = append(opts, Context(ctx))

	// Guard against panics when a zero-value Retryer is used directly.
	retryPolicy := r.retryPolicy
	if retryPolicy == nil {
		retryPolicy = NewFixedRetry(3)
	}
	backoffPolicy := r.backoffPolicy
	if backoffPolicy == nil {
		backoffPolicy = NewExponentialBackoff()
	}

	// maxAttempts <= 0 means unlimited.
	maxAttempts := retryPolicy.MaxAttempts()
	if maxAttempts <= 0 {
		opts = append(opts, UntilSucceeded())
	} else {
		opts = append(opts, Attempts(safeIntToUint(maxAttempts)))
	}

	// Attempts(maxAttempts) sets retry-go's hard ceiling; ShouldRetry inside
	// RetryIf adds finer per-attempt judgment on top. Both apply together —
	// ShouldRetry can stop early but never extends past the ceiling.
	// attemptCount counts failures so far (1-based), matching the attempt
	// argument RetryPolicy.ShouldRetry expects.
	//
	// attemptCount uses atomic.Int64 so a *retry.Retrier escaped via
	// Retrier() stays race-free even under concurrent Do() calls (a data
	// race is undefined behavior under the Go memory model). This has no
	// effect on the Retryer.Do() path, where each call builds its own
	// closure.
	var attemptCount atomic.Int64
	opts = append(opts, RetryIf(func(err error) bool {
		count := int(attemptCount.Add(1))
		// Check retry-go's own Unrecoverable wrapper first.
		if !IsRecoverable(err) {
			return false
		}
		return retryPolicy.ShouldRetry(ctx, count, err)
	}))

	// Delay type driven by the configured BackoffPolicy.
	opts = append(opts, DelayType(func(n uint, _ error, _ DelayContext) time.Duration {
		// retry-go v5's DelayType n starts at 1, matching BackoffPolicy.NextDelay.
		return backoffPolicy.NextDelay(safeUintToInt(n))
	}))

	if r.onRetry != nil {
		opts = append(opts, OnRetry(func(n uint, err error) {
			// retry-go v5's OnRetry n starts at 0; convert to 1-based.
			r.onRetry(safeUintToInt(n)+1, err)
		}))
	}

	// Return only the last error to simplify caller-side handling.
	opts = append(opts, LastErrorOnly(true))

	return opts
}

// Retrier returns the underlying retry.Retrier for full access to
// retry-go's feature set. A nil receiver builds one from defaults.
//
// The returned instance is single-use, like strings.Builder. The internal
// RetryIf closure carries attemptCount state; calling Do() more than once
// on the same instance accumulates that count and produces unexpectedly
// fewer retries. Call Retrier() again for each retry sequence. Concurrent
// Do() calls on one instance are race-free (attemptCount is atomic), but
// the shared count still lets concurrent callers steal from each other's
// retry budget.
//
// Not changed to a factory function: *retry.Retrier is retry-go's native
// type, and preserving that type identity matters more here than
// preventing misuse.
func (r *Retryer) Retrier(ctx context.Context) *retry.Retrier {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil {
		return retry.New(Context(ctx))
	}
	return retry.New(r.buildOptions(ctx)...)
}

// RetrierWithData returns the underlying retry.RetrierWithData, for
// scenarios that need a return value. See Retrier for single-use caveats.
func RetrierWithData[T any](ctx context.Context, r *Retryer) *retry.RetrierWithData[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil {
		return retry.NewWithData[T](Context(ctx))
	}
	return retry.NewWithData[T](r.buildOptions(ctx)...)
}

// RetryPolicy returns the configured retry policy. A nil receiver returns nil.
func (r *Retryer) RetryPolicy() RetryPolicy {
	if r == nil {
		return nil
	}
	return r.retryPolicy
}

// BackoffPolicy returns the configured backoff policy. A nil receiver returns nil.
func (r *Retryer) BackoffPolicy() BackoffPolicy {
	if r == nil {
		return nil
	}
	return r.backoffPolicy
}
