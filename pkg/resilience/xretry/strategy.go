package xretry

import (
	"github.com/faultline/faultline/pkg/resilience/xresilience"
	"github.com/faultline/faultline/pkg/util/xclock"
)

// Strategy is a retry xresilience.Strategy: it invokes next, and on a
// handled outcome retries after a delay computed by a BackoffPolicy, up to
// MaxRetries additional attempts.
//
// MaxRetries follows the pipeline convention, not RetryPolicy's: 0 means no
// retry (next runs exactly once), a positive n allows n retries after the
// first attempt, and a negative value means unlimited. This is distinct
// from RetryPolicy.MaxAttempts()'s "0 means unlimited" — Strategy does not
// implement RetryPolicy and the two are not interchangeable.
type Strategy struct {
	maxRetries   int
	backoff      BackoffPolicy
	shouldHandle xresilience.ResultPredicate
	onRetry      func(attempt int, value any, err error)
	clock        xclock.Clock
}

// StrategyOption configures a Strategy.
type StrategyOption func(*Strategy)

// WithStrategyMaxRetries sets the retry budget. See Strategy's doc for the
// 0/negative convention.
func WithStrategyMaxRetries(n int) StrategyOption {
	return func(s *Strategy) { s.maxRetries = n }
}

// WithStrategyBackoff sets the delay policy between retries.
func WithStrategyBackoff(b BackoffPolicy) StrategyOption {
	return func(s *Strategy) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithStrategyShouldHandle sets the predicate deciding which outcomes to
// retry. Defaults to xresilience.DefaultPredicate (retry on non-nil error).
func WithStrategyShouldHandle(p xresilience.ResultPredicate) StrategyOption {
	return func(s *Strategy) {
		if p != nil {
			s.shouldHandle = p
		}
	}
}

// WithStrategyOnRetry sets a hook invoked before each retry delay, with the
// 1-based attempt number and the outcome that triggered the retry.
func WithStrategyOnRetry(f func(attempt int, value any, err error)) StrategyOption {
	return func(s *Strategy) { s.onRetry = f }
}

// WithStrategyClock injects the clock used to wait out backoff delays.
// Tests should inject an xclock.FakeClock.
func WithStrategyClock(c xclock.Clock) StrategyOption {
	return func(s *Strategy) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewStrategy creates a retry Strategy.
// Defaults: MaxRetries 3, ExponentialBackoff, DefaultPredicate, real clock.
func NewStrategy(opts ...StrategyOption) *Strategy {
	s := &Strategy{
		maxRetries:   3,
		backoff:      NewExponentialBackoff(),
		shouldHandle: xresilience.DefaultPredicate,
		clock:        xclock.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Strategy) Name() string { return "retry" }

func (s *Strategy) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	attempt := 0
	for {
		value, err := next(ec)
		attempt++

		if !s.shouldHandle(value, err) {
			return value, err
		}
		if ec.Context().Err() != nil {
			return value, err
		}
		if s.maxRetries >= 0 && attempt > s.maxRetries {
			return value, err
		}

		if s.onRetry != nil {
			s.onRetry(attempt, value, err)
		}

		delay := s.backoff.NextDelay(attempt)
		if delay <= 0 {
			continue
		}

		timer := s.clock.NewTimer(delay)
		select {
		case <-ec.Context().Done():
			timer.Stop()
			return value, &xresilience.OperationCanceledError{Cause: ec.Context().Err()}
		case <-timer.Chan():
		}
	}
}

var _ xresilience.Strategy = (*Strategy)(nil)
