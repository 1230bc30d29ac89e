// Package faultline provides a fluent Builder for assembling resilience
// pipelines out of the strategies in pkg/resilience, mirroring the way
// xresilience.Builder composes bare Strategy values but with one method per
// concrete strategy so a caller never imports the sub-packages directly for
// the common case.
package faultline

import (
	"time"

	"github.com/faultline/faultline/pkg/config/xconf"
	"github.com/faultline/faultline/pkg/resilience/xbreaker"
	"github.com/faultline/faultline/pkg/resilience/xbulkhead"
	"github.com/faultline/faultline/pkg/resilience/xcache"
	"github.com/faultline/faultline/pkg/resilience/xfallback"
	"github.com/faultline/faultline/pkg/resilience/xhedge"
	"github.com/faultline/faultline/pkg/resilience/xlimit"
	"github.com/faultline/faultline/pkg/resilience/xresilience"
	"github.com/faultline/faultline/pkg/resilience/xretry"
	"github.com/faultline/faultline/pkg/resilience/xtimeout"
)

// Builder wraps xresilience.Builder with one Add method per strategy
// package, so a pipeline can be assembled without importing every
// strategy sub-package by hand.
type Builder struct {
	inner *xresilience.Builder
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{inner: xresilience.NewBuilder()}
}

// AddStrategy appends an arbitrary xresilience.Strategy, for strategies with
// no dedicated Add method (custom or third-party).
func (b *Builder) AddStrategy(s xresilience.Strategy) *Builder {
	b.inner.AddStrategy(s)
	return b
}

// AddRetry appends a retry strategy.
func (b *Builder) AddRetry(opts ...xretry.StrategyOption) *Builder {
	return b.AddStrategy(xretry.NewStrategy(opts...))
}

// AddCircuitBreaker appends a circuit-breaker strategy named name.
func (b *Builder) AddCircuitBreaker(name string, opts ...xbreaker.BreakerOption) *Builder {
	breaker := xbreaker.NewBreaker(name, opts...)
	return b.AddStrategy(breaker.Strategy())
}

// AddAdvancedCircuitBreaker appends a circuit-breaker strategy using a
// sliding failure-ratio window instead of AddCircuitBreaker's
// accumulate-forever counts: over the trailing window (divided into
// window/bucketPeriod buckets, oldest evicted as time advances), the
// breaker trips once at least minRequests calls were observed and their
// failure ratio reaches ratio.
func (b *Builder) AddAdvancedCircuitBreaker(name string, window, bucketPeriod time.Duration, ratio float64, minRequests uint32, opts ...xbreaker.BreakerOption) *Builder {
	breakerOpts := append([]xbreaker.BreakerOption{
		xbreaker.WithTripPolicy(xbreaker.NewFailureRatio(ratio, minRequests)),
		xbreaker.WithInterval(window),
		xbreaker.WithBucketPeriod(bucketPeriod),
	}, opts...)
	breaker := xbreaker.NewBreaker(name, breakerOpts...)
	return b.AddStrategy(breaker.Strategy())
}

// AddTimeout appends a timeout strategy bounding each attempt to timeout.
func (b *Builder) AddTimeout(timeout time.Duration, opts ...xtimeout.Option) *Builder {
	return b.AddStrategy(xtimeout.NewStrategy(timeout, opts...))
}

// AddBulkhead appends a bulkhead strategy. It panics if maxParallelization
// or maxQueuing is invalid, consistent with AddStrategy's treatment of
// builder misuse as a programmer error.
func (b *Builder) AddBulkhead(maxParallelization, maxQueuing int, opts ...xbulkhead.Option) *Builder {
	s, err := xbulkhead.NewStrategy(maxParallelization, maxQueuing, opts...)
	if err != nil {
		panic(err)
	}
	return b.AddStrategy(s)
}

// AddHedge appends a hedging strategy that races up to maxAttempts
// speculative attempts staggered by delay.
func (b *Builder) AddHedge(maxAttempts int, delay time.Duration, opts ...xhedge.Option) *Builder {
	return b.AddStrategy(xhedge.NewStrategy(maxAttempts, delay, opts...))
}

// AddFallback appends a fallback strategy that recovers a handled outcome
// via handler.
func (b *Builder) AddFallback(handler xfallback.Handler, opts ...xfallback.Option) *Builder {
	return b.AddStrategy(xfallback.NewStrategy(handler, opts...))
}

// AddStaticFallback appends a fallback strategy that substitutes a fixed
// value for any handled outcome.
func (b *Builder) AddStaticFallback(value any, opts ...xfallback.Option) *Builder {
	return b.AddStrategy(xfallback.NewStaticStrategy(value, opts...))
}

// AddRateLimit appends a rate-limiting strategy backed by limiter. It
// panics if limiter is nil.
func (b *Builder) AddRateLimit(limiter xlimit.Limiter, opts ...xlimit.StrategyOption) *Builder {
	s, err := xlimit.NewStrategy(limiter, opts...)
	if err != nil {
		panic(err)
	}
	return b.AddStrategy(s)
}

// Build finalizes the Builder into a Pipeline. Build may only be called
// once, matching xresilience.Builder.
func (b *Builder) Build() *xresilience.Pipeline {
	return b.inner.Build()
}

// FromOptions builds a Builder from a declarative PipelineOptions, wiring
// every stage that needs no external runtime dependency (retry, circuit
// breaker, timeout, bulkhead, hedge) in that order — outermost to
// innermost, so retries re-attempt the timed-out or broken-circuit call
// rather than the other way around. Cache and rate-limit are omitted: both
// need a runtime dependency (an xcache.Provider, a Limiter) that a config file
// cannot describe on its own, so callers wire those with AddCache and
// AddRateLimit directly.
func FromOptions(opts xconf.PipelineOptions) *Builder {
	b := NewBuilder()

	if opts.Retry != nil {
		r := opts.Retry
		backoff := xretry.NewExponentialBackoff(
			xretry.WithInitialDelay(r.InitialInterval),
			xretry.WithMaxDelay(r.MaxInterval),
			xretry.WithMultiplier(r.Multiplier),
		)
		b.AddRetry(
			xretry.WithStrategyMaxRetries(r.MaxRetries),
			xretry.WithStrategyBackoff(backoff),
		)
	}

	if opts.CircuitBreaker != nil {
		cb := opts.CircuitBreaker
		name := opts.Name
		if name == "" {
			name = "pipeline"
		}
		breakerOpts := []xbreaker.BreakerOption{
			xbreaker.WithTripPolicy(xbreaker.NewCompositePolicy(
				xbreaker.NewConsecutiveFailures(cb.ConsecutiveFailures),
				xbreaker.NewFailureRatio(cb.FailureRatio, cb.MinRequests),
			)),
		}
		if cb.BreakDuration > 0 {
			breakerOpts = append(breakerOpts, xbreaker.WithTimeout(cb.BreakDuration))
		}
		b.AddCircuitBreaker(name, breakerOpts...)
	}

	if opts.Timeout != nil {
		mode := xtimeout.Optimistic
		if opts.Timeout.Pessimistic {
			mode = xtimeout.Pessimistic
		}
		b.AddTimeout(opts.Timeout.Duration, xtimeout.WithMode(mode))
	}

	if opts.Bulkhead != nil {
		bh := opts.Bulkhead
		b.AddBulkhead(bh.MaxParallelization, bh.MaxQueuing)
	}

	if opts.Hedge != nil {
		h := opts.Hedge
		b.AddHedge(h.MaxAttempts, h.Delay)
	}

	return b
}

// AddCache appends a cache-aside strategy typed to T, backed by provider
// (see xcache.NewMemoryProvider/xcache.NewRedisProvider). It is a
// package-level function rather than a Builder method because Go methods
// cannot carry their own type parameters.
func AddCache[T any](b *Builder, provider xcache.Provider, ttl time.Duration, opts ...xcache.StrategyOption[T]) *Builder {
	s, err := xcache.NewStrategy[T](provider, ttl, opts...)
	if err != nil {
		panic(err)
	}
	return b.AddStrategy(s)
}
