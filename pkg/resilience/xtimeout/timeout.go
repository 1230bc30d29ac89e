package xtimeout

import (
	"context"
	"errors"
	"time"

	"github.com/faultline/faultline/pkg/resilience/xresilience"
	"github.com/faultline/faultline/pkg/util/xclock"
)

// Mode selects how a Strategy enforces its deadline.
type Mode int

const (
	// Optimistic derives a context.WithTimeout and calls next inline,
	// trusting it to observe cancellation.
	Optimistic Mode = iota
	// Pessimistic runs next in a background goroutine and abandons it at
	// the deadline without waiting for it to actually stop.
	Pessimistic
)

// Strategy bounds how long the wrapped operation may run.
type Strategy struct {
	timeout time.Duration
	mode    Mode
	clock   xclock.Clock
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithMode selects Optimistic or Pessimistic enforcement. Default:
// Optimistic.
func WithMode(m Mode) Option {
	return func(s *Strategy) { s.mode = m }
}

// WithClock overrides the clock used to measure elapsed time, for
// deterministic tests.
func WithClock(c xclock.Clock) Option {
	return func(s *Strategy) { s.clock = c }
}

// NewStrategy creates a timeout Strategy. A non-positive timeout means
// infinite: the strategy disables itself and calls next directly, with no
// deadline and no background goroutine.
func NewStrategy(timeout time.Duration, opts ...Option) *Strategy {
	s := &Strategy{
		timeout: timeout,
		clock:   xclock.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies this strategy in diagnostics.
func (s *Strategy) Name() string { return "timeout" }

// Execute enforces the deadline around next, per the configured Mode. A
// non-positive timeout disables the strategy entirely: next runs directly,
// bound only by whatever deadline ec's own context already carries.
func (s *Strategy) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	if s.timeout <= 0 {
		return next(ec)
	}
	if s.mode == Pessimistic {
		return s.executePessimistic(next, ec)
	}
	return s.executeOptimistic(next, ec)
}

func (s *Strategy) executeOptimistic(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	parent := ec.Context()
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := s.clock.Now()
	original := ec.Context()
	ec.WithContext(ctx)
	defer ec.WithContext(original)

	value, err := next(ec)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return nil, &xresilience.TimeoutRejectedError{Timeout: s.timeout, Elapsed: s.clock.Since(start)}
	}
	return value, err
}

// result carries next's outcome across the background goroutine boundary.
type result struct {
	value any
	err   error
}

func (s *Strategy) executePessimistic(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	parent := ec.Context()
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := s.clock.Now()
	done := make(chan result, 1)

	// next runs against a dedicated ExecutionContext, not ec: if the
	// deadline wins the select below, Execute returns and the caller's
	// deferred ec.Release() can recycle ec into contextPool immediately,
	// while this goroutine may still be abandoned and running.
	attemptEC := xresilience.AcquireContext(ctx)
	attemptEC.OperationKey = ec.OperationKey

	go func() {
		defer attemptEC.Release()
		value, err := next(attemptEC)
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		if parent.Err() != nil {
			return nil, &xresilience.OperationCanceledError{Cause: parent.Err()}
		}
		// The operation is abandoned here: its goroutine keeps running and
		// will eventually write to done, which nobody drains again.
		return nil, &xresilience.TimeoutRejectedError{Timeout: s.timeout, Elapsed: s.clock.Since(start)}
	}
}

var _ xresilience.Strategy = (*Strategy)(nil)
