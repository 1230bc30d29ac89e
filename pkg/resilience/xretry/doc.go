// Package xretry provides retry and backoff policy interfaces and
// implementations.
//
// # Design
//
// xretry is interface-driven:
//   - RetryPolicy decides whether to retry
//   - BackoffPolicy decides how long to wait between retries
//
// Retry execution is backed by [avast/retry-go/v5].
//
// # Retry policies
//
// Three built-in policies:
//   - FixedRetryPolicy: a fixed number of attempts
//   - AlwaysRetryPolicy: unlimited retries (use with care)
//   - NeverRetryPolicy: never retries
//
// # Backoff policies
//
// Five built-in policies:
//   - FixedBackoff: constant delay
//   - ExponentialBackoff: exponential backoff with jitter
//   - LinearBackoff: linear backoff
//   - DecorrelatedJitterBackoff: AWS-style decorrelated jitter
//   - NoBackoff: no delay
//
// # Usage
//
// Option A: Retryer, for callers that want the RetryPolicy/BackoffPolicy
// abstraction:
//
//	retryer := xretry.NewRetryer(
//	    xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
//	    xretry.WithBackoffPolicy(xretry.NewExponentialBackoff()),
//	)
//	err := retryer.Do(ctx, func(ctx context.Context) error {
//	    return doSomething()
//	})
//
// Option B: direct retry-go style, for simple call sites:
//
//	err := xretry.Do(ctx, func() error {
//	    return doSomething()
//	}, xretry.Attempts(3), xretry.Delay(100*time.Millisecond))
//
// Option C: as a pipeline stage — NewStrategy builds an
// xresilience.Strategy from a retry budget and a BackoffPolicy (it takes no
// RetryPolicy), for composition alongside
// circuit breakers, timeouts, and the other strategies in this module:
//
//	s := xretry.NewStrategy(
//	    xretry.WithStrategyMaxRetries(3),
//	    xretry.WithStrategyBackoff(xretry.NewDecorrelatedJitterBackoff(100*time.Millisecond, 5*time.Second)),
//	)
//	pipeline := xresilience.NewBuilder().AddStrategy(s).Build()
//
// # Error classification
//
//   - NewPermanentError(err): mark an error as permanent (should not retry)
//   - NewTemporaryError(err): mark an error as temporary (should retry)
//   - Unrecoverable(err): retry-go's own unrecoverable marker
//
// See individual function docs and example_test.go for details.
//
// # Performance
//
// The stateless backoff policies draw jitter from an injected
// xclock.UniformSource, defaulting to crypto/rand for secure randomness. A
// single NextDelay call costs roughly 50-100ns, negligible against typical
// retry cadences. For deterministic behavior — tests, mainly — inject an
// xclock.FixedSource or use WithJitter(0).
//
// [avast/retry-go/v5]: https://github.com/avast/retry-go
package xretry
