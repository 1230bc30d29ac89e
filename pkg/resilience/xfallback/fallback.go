package xfallback

import (
	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

// Handler computes a replacement outcome from the fault next produced.
type Handler func(ec *xresilience.ExecutionContext, faultedValue any, faultedErr error) (any, error)

// Strategy substitutes a recovery outcome whenever next's result is
// considered a fault by its ResultPredicate.
type Strategy struct {
	name      string
	predicate xresilience.ResultPredicate
	handler   Handler
	onFallback func(faultedValue any, faultedErr error)
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithName sets the strategy's name. Default: "fallback".
func WithName(name string) Option {
	return func(s *Strategy) { s.name = name }
}

// WithPredicate overrides which outcomes trigger the fallback. Default:
// xresilience.DefaultPredicate.
func WithPredicate(p xresilience.ResultPredicate) Option {
	return func(s *Strategy) {
		if p != nil {
			s.predicate = p
		}
	}
}

// WithOnFallback registers a callback invoked with the original faulted
// outcome whenever the fallback fires, for logging or metrics.
func WithOnFallback(fn func(faultedValue any, faultedErr error)) Option {
	return func(s *Strategy) { s.onFallback = fn }
}

// NewStrategy creates a fallback Strategy that runs handler whenever next's
// outcome is considered a fault.
func NewStrategy(handler Handler, opts ...Option) *Strategy {
	s := &Strategy{
		name:      "fallback",
		predicate: xresilience.DefaultPredicate,
		handler:   handler,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStaticStrategy creates a fallback Strategy that substitutes a fixed
// value whenever next's outcome is considered a fault, discarding the
// original error.
func NewStaticStrategy(value any, opts ...Option) *Strategy {
	return NewStrategy(func(_ *xresilience.ExecutionContext, _ any, _ error) (any, error) {
		return value, nil
	}, opts...)
}

// Name identifies this strategy in diagnostics.
func (s *Strategy) Name() string { return s.name }

// Execute runs next, substituting the handler's outcome if next's result
// is considered a fault.
func (s *Strategy) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	value, err := next(ec)
	if !s.predicate(value, err) {
		return value, err
	}
	if s.onFallback != nil {
		s.onFallback(value, err)
	}
	if s.handler == nil {
		return value, err
	}
	return s.handler(ec, value, err)
}

var _ xresilience.Strategy = (*Strategy)(nil)
