package xbreaker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

// TripPolicy decides when a circuit should trip.
//
// Implement this to customize the trip condition. When ReadyToTrip returns
// true, the breaker transitions from Closed to Open.
type TripPolicy interface {
	// ReadyToTrip inspects the current window's Counts and decides.
	ReadyToTrip(counts Counts) bool
}

// SuccessPolicy customizes what counts as success (optional).
// By default, err == nil is success.
type SuccessPolicy interface {
	IsSuccessful(err error) bool
}

// ExcludePolicy marks errors that should be excluded from the breaker's
// counts entirely, neither success nor failure. Useful for errors like
// context.Canceled that reflect caller behavior, not downstream health.
type ExcludePolicy interface {
	IsExcluded(err error) bool
}

// Breaker executes operations behind a circuit breaker.
//
// It wraps gobreaker with a friendlier surface: TripPolicy replaces
// gobreaker's ReadyToTrip closure, and Isolate/Close add the manual control
// gobreaker itself doesn't expose.
type Breaker struct {
	name          string
	tripPolicy    TripPolicy
	successPolicy SuccessPolicy
	excludePolicy ExcludePolicy
	timeout       time.Duration
	interval      time.Duration
	bucketPeriod  time.Duration
	maxRequests   uint32
	onStateChange func(name string, from, to State)

	isolated atomic.Bool
	lastErr  atomic.Value // stores errBox

	cb *gobreaker.CircuitBreaker[any]
}

// errBox lets atomic.Value hold a possibly-nil error: storing a bare nil
// error interface directly would panic (inconsistent concrete type across
// Store calls).
type errBox struct{ err error }

// recordOutcome remembers the last non-nil error an underlying call
// produced, so a subsequent rejection can report what most recently
// tripped or renewed the breaker.
func (b *Breaker) recordOutcome(err error) {
	if err != nil {
		b.lastErr.Store(errBox{err})
	}
}

// lastHandledErr returns the most recent error recorded by recordOutcome,
// or nil if none has been observed yet.
func (b *Breaker) lastHandledErr() error {
	if v, ok := b.lastErr.Load().(errBox); ok {
		return v.err
	}
	return nil
}

// execute runs fn behind the underlying gobreaker, recording its outcome
// before returning.
func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(func() (any, error) {
		v, err := fn()
		b.recordOutcome(err)
		return v, err
	})
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithTripPolicy sets the trip policy. Default: 5 consecutive failures.
func WithTripPolicy(p TripPolicy) BreakerOption {
	return func(b *Breaker) {
		if p != nil {
			b.tripPolicy = p
		}
	}
}

// WithSuccessPolicy sets the success policy.
// By default err == nil is success; some callers need finer judgment, e.g.
// treating HTTP 5xx as failure but 4xx as success.
func WithSuccessPolicy(p SuccessPolicy) BreakerOption {
	return func(b *Breaker) {
		b.successPolicy = p
	}
}

// WithExcludePolicy sets the exclude policy. Errors it matches are counted
// as neither success nor failure.
func WithExcludePolicy(p ExcludePolicy) BreakerOption {
	return func(b *Breaker) {
		b.excludePolicy = p
	}
}

// WithTimeout sets how long the breaker stays Open before probing HalfOpen.
// Default: 60s.
func WithTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInterval sets the fixed-window period: in Closed state, counts reset
// every Interval. Default: 0 (never reset, counts accumulate forever).
//
// Combine with WithBucketPeriod for a sliding window instead of a fixed one
// a sliding window avoids the statistical skew a fixed window shows at
// its boundary.
//
// Example:
//
//	// Fixed window: reset counts every 60s.
//	b := xbreaker.NewBreaker("svc", xbreaker.WithInterval(60*time.Second))
//
//	// Sliding window: 60s span, 10s buckets.
//	b := xbreaker.NewBreaker("svc",
//	    xbreaker.WithInterval(60*time.Second),
//	    xbreaker.WithBucketPeriod(10*time.Second),
//	)
func WithInterval(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		b.interval = d
	}
}

// WithBucketPeriod sets the sliding-window bucket period. With both
// Interval and BucketPeriod set, the breaker keeps Interval/BucketPeriod
// buckets and evicts the oldest as time advances, instead of resetting all
// counts at once.
//
// BucketPeriod should evenly divide Interval; set both together.
// Default: 0 (fixed-window mode).
func WithBucketPeriod(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.bucketPeriod = d
		}
	}
}

// WithMaxRequests sets how many requests are allowed through while
// HalfOpen. Default: 1.
func WithMaxRequests(n uint32) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithOnStateChange sets a callback invoked on every state transition,
// useful for logging or alerting.
func WithOnStateChange(f func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.onStateChange = f
	}
}

// NewBreaker creates a Breaker.
// name identifies it in logs and metrics.
// Defaults: 5 consecutive failures, 60s timeout, 1 HalfOpen request.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:        name,
		tripPolicy:  NewConsecutiveFailures(5),
		timeout:     60 * time.Second,
		maxRequests: 1,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.cb = b.buildCircuitBreaker()

	return b
}

func (b *Breaker) buildSettings() gobreaker.Settings {
	st := gobreaker.Settings{
		Name:         b.name,
		MaxRequests:  b.maxRequests,
		Interval:     b.interval,
		BucketPeriod: b.bucketPeriod,
		Timeout:      b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return b.tripPolicy.ReadyToTrip(counts)
		},
	}

	if b.successPolicy != nil {
		st.IsSuccessful = func(err error) bool {
			return b.successPolicy.IsSuccessful(err)
		}
	}

	if b.excludePolicy != nil {
		st.IsExcluded = func(err error) bool {
			return b.excludePolicy.IsExcluded(err)
		}
	}

	if b.onStateChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			b.onStateChange(name, from, to)
		}
	}

	return st
}

func (b *Breaker) buildCircuitBreaker() *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](b.buildSettings())
}

// Do executes fn behind the breaker.
//
// If ctx is already canceled, it returns the context error directly. If
// the breaker is Isolated, it returns *IsolatedError. If Open, it
// returns BreakerError wrapping ErrOpenState (or ErrTooManyRequests while
// HalfOpen).
//
// ctx is only checked at entry; it is not threaded into fn.
// Breaker errors are wrapped in BreakerError, whose Retryable() returns
// false, so an xretry.Strategy layered outside a breaker stage never
// retries a rejected call.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.isolated.Load() {
		return &IsolatedError{Name: b.name}
	}

	_, err := b.execute(func() (any, error) {
		return nil, fn()
	})
	return wrapBreakerError(err, b.name)
}

// Execute runs fn behind the breaker, returning a value.
//
// A package-level function because Go methods cannot take type parameters.
func Execute[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if b.isolated.Load() {
		return zero, &IsolatedError{Name: b.name}
	}

	result, err := b.execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, wrapBreakerError(err, b.name)
	}
	if result == nil {
		return zero, nil
	}
	if typed, ok := result.(T); ok {
		return typed, nil
	}
	return zero, nil
}

// State returns the breaker's current state. Isolated takes priority over
// the underlying gobreaker state.
func (b *Breaker) State() State {
	if b.isolated.Load() {
		return StateIsolated
	}
	return b.cb.State()
}

// Isolate forces the breaker open until Close is called, regardless of
// observed outcomes. Every call rejects with IsolatedError while isolated.
// This is the manual-override control gobreaker itself doesn't expose.
func (b *Breaker) Isolate() {
	b.isolated.Store(true)
}

// Close ends manual isolation. The breaker resumes evaluating its
// TripPolicy from its last recorded gobreaker state. Close does not reset
// counts.
func (b *Breaker) Close() {
	b.isolated.Store(false)
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

// Counts returns the current window's statistics.
func (b *Breaker) Counts() Counts {
	return b.cb.Counts()
}

// CircuitBreaker returns the underlying gobreaker.CircuitBreaker, for
// gobreaker's full feature set.
func (b *Breaker) CircuitBreaker() *gobreaker.CircuitBreaker[any] {
	return b.cb
}

// TripPolicy returns the configured trip policy.
func (b *Breaker) TripPolicy() TripPolicy {
	return b.tripPolicy
}

// SuccessPolicy returns the configured success policy, or nil if the
// default err == nil rule applies.
func (b *Breaker) SuccessPolicy() SuccessPolicy {
	return b.successPolicy
}

// ExcludePolicy returns the configured exclude policy, or nil if none.
func (b *Breaker) ExcludePolicy() ExcludePolicy {
	return b.excludePolicy
}

// IsSuccessful reports whether err counts as success, per SuccessPolicy if
// set, otherwise err == nil.
func (b *Breaker) IsSuccessful(err error) bool {
	if b.successPolicy != nil {
		return b.successPolicy.IsSuccessful(err)
	}
	return err == nil
}

// IsExcluded reports whether err should be excluded from counts entirely.
func (b *Breaker) IsExcluded(err error) bool {
	if b.excludePolicy == nil || err == nil {
		return false
	}
	return b.excludePolicy.IsExcluded(err)
}

// Strategy adapts this Breaker to xresilience.Strategy, so it composes with
// other strategies inside a Pipeline. A rejection (Open or HalfOpen
// throttling) surfaces as xresilience.BrokenCircuitError, not the raw
// gobreaker sentinel Do/Execute return, so Pipeline callers get the same
// error taxonomy regardless of which strategy rejected the call.
func (b *Breaker) Strategy() xresilience.Strategy {
	return &breakerStrategy{breaker: b}
}

type breakerStrategy struct {
	breaker *Breaker
}

func (s *breakerStrategy) Name() string { return "circuit-breaker:" + s.breaker.name }

func (s *breakerStrategy) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	if err := ec.Context().Err(); err != nil {
		return nil, &xresilience.OperationCanceledError{Cause: err}
	}
	if s.breaker.isolated.Load() {
		return nil, &xresilience.IsolatedCircuitError{Name: s.breaker.name}
	}

	result, err := s.breaker.execute(func() (any, error) {
		return next(ec)
	})
	if err != nil {
		if IsBreakerError(err) {
			return nil, &xresilience.BrokenCircuitError{
				Name:           s.breaker.name,
				LastHandledErr: s.breaker.lastHandledErr(),
			}
		}
		return nil, err
	}
	return result, nil
}

// ManagedBreaker is a generic-typed breaker for hot paths that want to
// avoid the `any` type assertion Breaker.Execute performs. It fixes its
// return type at construction instead of per call.
type ManagedBreaker[T any] struct {
	breaker *Breaker
	cb      *gobreaker.CircuitBreaker[T]
}

// NewManagedBreaker creates a ManagedBreaker reusing b's configuration.
func NewManagedBreaker[T any](b *Breaker) (*ManagedBreaker[T], error) {
	if b == nil {
		return nil, ErrNilBreaker
	}

	st := b.buildSettings()

	return &ManagedBreaker[T]{
		breaker: b,
		cb:      gobreaker.NewCircuitBreaker[T](st),
	}, nil
}

// Execute runs fn behind the breaker.
func (m *ManagedBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	result, err := m.cb.Execute(fn)
	if err != nil {
		return result, wrapBreakerError(err, m.breaker.name)
	}
	return result, nil
}

// Name returns the breaker's name.
func (m *ManagedBreaker[T]) Name() string {
	return m.breaker.name
}

// State returns the breaker's current state.
func (m *ManagedBreaker[T]) State() State {
	return m.cb.State()
}

// Counts returns the current window's statistics.
func (m *ManagedBreaker[T]) Counts() Counts {
	return m.cb.Counts()
}

// CircuitBreaker returns the underlying generic gobreaker instance.
func (m *ManagedBreaker[T]) CircuitBreaker() *gobreaker.CircuitBreaker[T] {
	return m.cb
}
