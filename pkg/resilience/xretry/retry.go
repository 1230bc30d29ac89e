package xretry

import (
	"context"
	"time"
)

// RetryPolicy decides whether to keep retrying.
//
// When used through Retryer:
//   - MaxAttempts() sets retry-go's Attempts ceiling
//   - ShouldRetry() is consulted after every failure for custom logic
//   - an Unrecoverable-wrapped error short-circuits before ShouldRetry runs
type RetryPolicy interface {
	// MaxAttempts returns the maximum number of attempts, including the
	// first. 0 means unlimited.
	MaxAttempts() int

	// ShouldRetry decides whether to retry.
	//
	// ctx: cancelable context.
	// attempt: the attempt number just completed (1-based).
	// err: the error from that attempt.
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy computes the delay before the next retry.
type BackoffPolicy interface {
	// NextDelay returns the delay before the given attempt (1-based).
	NextDelay(attempt int) time.Duration
}

// ResettableBackoff is a BackoffPolicy that can clear internal state.
//
// Retryer does not call Reset automatically today — the only stateless
// implementations (Fixed/Exponential/Linear/NoBackoff) have nothing to
// reset. This is an extension point for stateful custom backoffs; callers
// that need post-success reset should type-assert and call it themselves.
type ResettableBackoff interface {
	BackoffPolicy
	Reset()
}

// Executor runs an operation with retry.
//
// NewRetryer returns *Retryer rather than this interface because the
// generic DoWithResult function needs access to *Retryer's internals.
// Callers that want to mock a retry executor should depend on this
// interface in their own code instead.
type Executor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
