package xretry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// These aliases mirror avast/retry-go/v5's public surface so callers never
// need to import it directly, which keeps a replacement of the underlying
// implementation an internal change instead of an API break.
type (
	// Option is retry-go's configuration option type.
	Option = retry.Option

	// OnRetryFunc is the retry callback signature.
	// attempt starts at 0; err is the error from the attempt just completed.
	OnRetryFunc = retry.OnRetryFunc

	// RetryIfFunc decides whether to retry.
	RetryIfFunc = retry.RetryIfFunc

	// DelayTypeFunc computes the delay type.
	DelayTypeFunc = retry.DelayTypeFunc

	// DelayContext carries configuration values used by delay computation.
	DelayContext = retry.DelayContext

	// Timer tracks time across retries.
	Timer = retry.Timer

	// Error aggregates the errors from a retry sequence.
	Error = retry.Error
)

// retry-go configuration options.
var (
	// Attempts sets the total attempt count (including the first). 0 means
	// unlimited. Attempts(3) means at most 3 executions (1 initial + 2
	// retries). Default: 10.
	Attempts = retry.Attempts

	// UntilSucceeded retries without limit, equivalent to Attempts(0).
	UntilSucceeded = retry.UntilSucceeded

	// AttemptsForError sets a per-error attempt count.
	AttemptsForError = retry.AttemptsForError

	// Delay sets the retry interval. Default: 100ms.
	Delay = retry.Delay

	// MaxDelay sets the maximum retry interval.
	MaxDelay = retry.MaxDelay

	// MaxJitter sets the maximum jitter duration.
	MaxJitter = retry.MaxJitter

	// DelayType sets the delay computation strategy.
	// Default: CombineDelay(BackOffDelay, RandomDelay).
	DelayType = retry.DelayType

	// OnRetry sets the retry callback.
	OnRetry = retry.OnRetry

	// RetryIf sets the retry predicate.
	RetryIf = retry.RetryIf

	// Context sets the context.
	Context = retry.Context

	// WithTimer sets a custom timer, mainly for tests.
	WithTimer = retry.WithTimer

	// LastErrorOnly returns only the last error. Default: false (all errors).
	LastErrorOnly = retry.LastErrorOnly

	// WrapContextErrorWithLastError wraps the context error together with
	// the last attempt error.
	WrapContextErrorWithLastError = retry.WrapContextErrorWithLastError
)

// retry-go delay type functions.
var (
	// BackOffDelay is exponential backoff.
	BackOffDelay = retry.BackOffDelay

	// FixedDelay is a constant delay.
	FixedDelay = retry.FixedDelay

	// RandomDelay is a randomized delay.
	RandomDelay = retry.RandomDelay

	// CombineDelay combines multiple delay types.
	CombineDelay = retry.CombineDelay

	// FullJitterBackoffDelay is full-jitter exponential backoff.
	FullJitterBackoffDelay = retry.FullJitterBackoffDelay
)

// retry-go error classification helpers.
var (
	// Unrecoverable marks an error as non-retryable, retry-go's native
	// unrecoverable marker.
	Unrecoverable = retry.Unrecoverable

	// IsRecoverable reports whether an error is retryable.
	IsRecoverable = retry.IsRecoverable
)

// Do executes fn with retry.
//
// A thin wrapper over retry-go matching xretry's API style. fn takes no
// context; capture it via closure if needed, or use Retryer.Do for a
// context-aware callback signature.
//
// Delay semantics: the default is retry-go's
// CombineDelay(BackOffDelay, RandomDelay) — even with Delay(0), the default
// MaxJitter still introduces randomness. For exact zero-delay retries, set
// both Delay(0) and MaxJitter(0).
//
// Example:
//
//	err := xretry.Do(ctx, func() error {
//	    return doSomething()
//	}, xretry.Attempts(3), xretry.Delay(100*time.Millisecond))
//
// Skip retry entirely with PermanentError:
//
//	err := xretry.Do(ctx, func() error {
//	    if invalidInput {
//	        return xretry.NewPermanentError(errors.New("invalid input"))
//	    }
//	    return doSomething()
//	})
//
// If the caller supplies a RetryIf option, it replaces the built-in
// classification — PermanentError/TemporaryError/Unrecoverable no longer
// apply automatically, and the custom RetryIf must account for them, e.g.:
//
//	err := xretry.Do(ctx, fn, xretry.RetryIf(func(err error) bool {
//	    if !xretry.IsRecoverable(err) || !xretry.IsRetryable(err) {
//	        return false
//	    }
//	    return !errors.Is(err, ErrFatal)
//	}))
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(defaultOpts(ctx, opts)...).Do(fn)
}

// DoWithData executes fn with retry, returning a value.
//
// A generic counterpart to Do.
//
// Example:
//
//	result, err := xretry.DoWithData(ctx, func() (string, error) {
//	    return fetchData()
//	}, xretry.Attempts(3))
//
// As with Do, a caller-supplied RetryIf replaces the built-in
// classification; see Do's documentation.
func DoWithData[T any](ctx context.Context, fn func() (T, error), opts ...Option) (T, error) {
	var zero T
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](defaultOpts(ctx, opts)...).Do(fn)
}

// defaultOpts builds the option list with the default RetryIf logic
// installed. The default RetryIf checks IsRecoverable (Unrecoverable
// errors) and IsRetryable (PermanentError/TemporaryError). Caller-supplied
// opts are appended after, so a caller RetryIf overrides the default.
func defaultOpts(ctx context.Context, opts []Option) []Option {
	allOpts := make([]Option, 0, len(opts)+2)
	allOpts = append(allOpts, Context(ctx))
	allOpts = append(allOpts, RetryIf(func(err error) bool {
		if !IsRecoverable(err) {
			return false
		}
		return IsRetryable(err)
	}))
	return append(allOpts, opts...)
}

// NewRetrier creates a bare retry.Retrier.
//
// Retryer (xretry's policy-driven executor) and Retrier (the native
// retry-go instance) differ by one letter but not in kind: Retryer
// abstracts through RetryPolicy/BackoffPolicy; Retrier exposes retry-go's
// full configuration surface directly. See doc.go for which to reach for.
//
// Example:
//
//	retrier := xretry.NewRetrier(
//	    xretry.Attempts(3),
//	    xretry.Delay(100*time.Millisecond),
//	    xretry.OnRetry(func(n uint, err error) {
//	        log.Printf("retry #%d: %v", n, err)
//	    }),
//	)
//	err := retrier.Do(func() error {
//	    return doSomething()
//	})
func NewRetrier(opts ...Option) *retry.Retrier {
	return retry.New(opts...)
}

// NewRetrierWithData creates a bare retry.RetrierWithData.
//
// Example:
//
//	retrier := xretry.NewRetrierWithData[string](
//	    xretry.Attempts(3),
//	)
//	result, err := retrier.Do(func() (string, error) {
//	    return fetchData()
//	})
func NewRetrierWithData[T any](opts ...Option) *retry.RetrierWithData[T] {
	return retry.NewWithData[T](opts...)
}

// ToDelayType adapts a BackoffPolicy to retry-go's DelayTypeFunc, for
// scenarios that mix both APIs.
//
// Example:
//
//	backoff := xretry.NewExponentialBackoff()
//	retrier := xretry.NewRetrier(
//	    xretry.Attempts(3),
//	    xretry.DelayType(xretry.ToDelayType(backoff)),
//	)
func ToDelayType(policy BackoffPolicy) DelayTypeFunc {
	if policy == nil {
		return func(_ uint, _ error, _ DelayContext) time.Duration {
			return 0
		}
	}
	return func(n uint, _ error, _ DelayContext) time.Duration {
		return policy.NextDelay(safeUintToInt(n))
	}
}
