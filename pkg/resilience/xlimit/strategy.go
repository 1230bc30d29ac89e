package xlimit

import (
	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

// KeyFunc derives a rate-limit Key from an execution. The default keys
// solely on ExecutionContext.OperationKey.
type KeyFunc func(ec *xresilience.ExecutionContext) Key

// Strategy adapts a Limiter into an xresilience.Strategy, rejecting calls
// with xresilience.RateLimitedError once the limiter denies them.
type Strategy struct {
	name    string
	limiter Limiter
	keyFunc KeyFunc
}

// StrategyOption configures a Strategy.
type StrategyOption func(*Strategy)

// WithStrategyName sets the strategy's name. Default: "rate-limit".
func WithStrategyName(name string) StrategyOption {
	return func(s *Strategy) { s.name = name }
}

// WithKeyFunc overrides how a Key is derived from an execution. Default:
// Key{Resource: ec.OperationKey}.
func WithKeyFunc(fn KeyFunc) StrategyOption {
	return func(s *Strategy) {
		if fn != nil {
			s.keyFunc = fn
		}
	}
}

// NewStrategy wraps limiter as an xresilience.Strategy.
func NewStrategy(limiter Limiter, opts ...StrategyOption) (*Strategy, error) {
	if limiter == nil {
		return nil, ErrNilClient
	}
	s := &Strategy{
		name:    "rate-limit",
		limiter: limiter,
		keyFunc: func(ec *xresilience.ExecutionContext) Key {
			return Key{Resource: ec.OperationKey}
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name identifies this strategy in diagnostics.
func (s *Strategy) Name() string { return s.name }

// Execute checks the limiter before running next, rejecting with
// xresilience.RateLimitedError when the limiter denies the call.
func (s *Strategy) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	key := s.keyFunc(ec)
	result, err := s.limiter.Allow(ec.Context(), key)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return nil, &xresilience.RateLimitedError{RetryAfter: result.RetryAfter}
	}
	return next(ec)
}

var _ xresilience.Strategy = (*Strategy)(nil)
