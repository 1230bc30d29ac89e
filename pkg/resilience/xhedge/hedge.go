package xhedge

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faultline/faultline/pkg/resilience/xresilience"
	"github.com/faultline/faultline/pkg/util/xclock"
)

// Strategy races up to MaxAttempts copies of an operation, staggered by
// Delay, returning the first result its ResultPredicate doesn't consider a
// fault.
type Strategy struct {
	name        string
	maxAttempts int
	delay       time.Duration
	predicate   xresilience.ResultPredicate
	clock       xclock.Clock
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithName sets the strategy's name. Default: "hedge".
func WithName(name string) Option {
	return func(s *Strategy) { s.name = name }
}

// WithPredicate overrides which outcomes count as faults that should keep
// the race going. Default: xresilience.DefaultPredicate.
func WithPredicate(p xresilience.ResultPredicate) Option {
	return func(s *Strategy) {
		if p != nil {
			s.predicate = p
		}
	}
}

// WithClock overrides the clock used to schedule staggered attempts, for
// deterministic tests.
func WithClock(c xclock.Clock) Option {
	return func(s *Strategy) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewStrategy creates a hedging Strategy. maxAttempts is the total number
// of attempts including the first, clamped to at least 1. delay is how
// long to wait after starting an attempt before starting the next one.
func NewStrategy(maxAttempts int, delay time.Duration, opts ...Option) *Strategy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s := &Strategy{
		name:        "hedge",
		maxAttempts: maxAttempts,
		delay:       delay,
		predicate:   xresilience.DefaultPredicate,
		clock:       xclock.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies this strategy in diagnostics.
func (s *Strategy) Name() string { return s.name }

type attemptResult struct {
	value any
	err   error
}

// Execute starts next immediately, then starts additional staggered
// attempts as Delay elapses without a non-faulty result, up to
// MaxAttempts. The first attempt whose result the predicate doesn't treat
// as a fault wins; every other in-flight attempt is canceled. If every
// attempt's result is a fault, the last one to finish is returned.
//
// Attempts run under an errgroup.Group so every goroutine this call spawns
// is tracked and joined, rather than left to finish on its own after
// Execute returns. Winning early is hedging's entire point, though, so the
// join happens off to the side: once a winner is picked (or the parent is
// canceled) the losing attempts are canceled and g.Wait() is awaited on a
// separate goroutine, releasing their ExecutionContexts as they land
// instead of blocking the winner's return on the slowest loser.
func (s *Strategy) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	parent := ec.Context()
	results := make(chan attemptResult, s.maxAttempts)

	g, groupCtx := errgroup.WithContext(parent)
	cancels := make([]context.CancelFunc, 0, s.maxAttempts)

	launch := func() {
		attemptCtx, cancel := context.WithCancel(groupCtx)
		cancels = append(cancels, cancel)
		attemptEC := xresilience.AcquireContext(attemptCtx)
		attemptEC.OperationKey = ec.OperationKey
		g.Go(func() error {
			defer attemptEC.Release()
			value, err := next(attemptEC)
			results <- attemptResult{value: value, err: err}
			return nil
		})
	}

	cancelAll := func() {
		for _, cancel := range cancels {
			cancel()
		}
		go g.Wait()
	}

	launch()
	remaining := s.maxAttempts - 1

	var timerChan <-chan time.Time
	var t interface {
		Chan() <-chan time.Time
		Reset(time.Duration) bool
		Stop() bool
	}
	if remaining > 0 && s.delay > 0 {
		t = s.clock.NewTimer(s.delay)
		timerChan = t.Chan()
		defer t.Stop()
	}
	if s.delay <= 0 {
		// With no delay there is nothing to wait for: start every attempt now.
		for ; remaining > 0; remaining-- {
			launch()
		}
	}

	var last attemptResult
	received := 0
	for received < s.maxAttempts {
		select {
		case r := <-results:
			received++
			last = r
			if !s.predicate(r.value, r.err) {
				cancelAll()
				return r.value, r.err
			}
		case <-timerChan:
			if remaining > 0 {
				launch()
				remaining--
				if remaining > 0 {
					t.Reset(s.delay)
				} else {
					timerChan = nil
				}
			}
		case <-parent.Done():
			cancelAll()
			return nil, &xresilience.OperationCanceledError{Cause: parent.Err()}
		}
	}
	cancelAll()
	return last.value, last.err
}

var _ xresilience.Strategy = (*Strategy)(nil)
