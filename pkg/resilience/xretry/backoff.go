package xretry

import (
	"math"
	"time"

	"github.com/faultline/faultline/pkg/util/xclock"
)

// FixedBackoff is a constant-delay backoff policy.
type FixedBackoff struct {
	delay time.Duration
}

// NewFixedBackoff creates a constant-delay backoff policy.
func NewFixedBackoff(delay time.Duration) *FixedBackoff {
	if delay < 0 {
		delay = 0
	}
	return &FixedBackoff{delay: delay}
}

func (b *FixedBackoff) NextDelay(_ int) time.Duration {
	return b.delay
}

// ExponentialBackoff computes
// delay = min(initialDelay * multiplier^(attempt-1) * (1 + rand(-1,1) * jitter), maxDelay)
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
	source       xclock.UniformSource
}

// ExponentialBackoffOption configures an ExponentialBackoff.
type ExponentialBackoffOption func(*ExponentialBackoff)

// WithInitialDelay sets the initial delay.
// d <= 0 is silently ignored (keeps the default), consistent with
// WithMaxDelay/WithMultiplier. WithJitter clamps instead, since jitter has
// a well-defined valid range of [0,1].
func WithInitialDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.initialDelay = d
		}
	}
}

// WithMaxDelay sets the maximum delay.
func WithMaxDelay(d time.Duration) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if d > 0 {
			b.maxDelay = d
		}
	}
}

// WithMultiplier sets the growth multiplier (>= 1.0).
// 1.0 means constant delay (no exponential growth). Values below 1.0 are
// ignored, keeping the default of 2.0.
func WithMultiplier(m float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if m >= 1 {
			b.multiplier = m
		}
	}
}

// WithJitter sets the jitter factor, clamped to [0,1].
func WithJitter(j float64) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if j < 0 {
			j = 0
		} else if j > 1 {
			j = 1
		}
		b.jitter = j
	}
}

// WithSource injects the uniform-[0,1) source used to compute jitter. The
// default is xclock.CryptoSource, backed by crypto/rand. Tests should
// inject an xclock.FixedSource for deterministic delays.
func WithSource(s xclock.UniformSource) ExponentialBackoffOption {
	return func(b *ExponentialBackoff) {
		if s != nil {
			b.source = s
		}
	}
}

// NewExponentialBackoff creates an exponential backoff policy.
// Defaults: initialDelay 100ms, maxDelay 30s, multiplier 2.0, jitter 0.1 (10%).
func NewExponentialBackoff(opts ...ExponentialBackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		jitter:       0.1,
		source:       xclock.CryptoSource{},
	}
	for _, opt := range opts {
		opt(b)
	}
	// Mirrors NewLinearBackoff: keep maxDelay >= initialDelay.
	if b.maxDelay < b.initialDelay {
		b.maxDelay = b.initialDelay
	}
	return b
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1))

	if b.jitter > 0 {
		jitterFactor := 1.0 + (b.source.Float64()*2-1)*b.jitter
		delay *= jitterFactor
	}

	// NaN-safe clamping: when attempt is huge, math.Pow overflows to +Inf,
	// and multiplying by a jitterFactor of 0 yields NaN. IEEE 754 makes
	// every comparison against NaN false, which would bypass the maxDelay
	// clamp below. Treat NaN and negative results as "backoff already
	// saturated" and return maxDelay.
	if math.IsNaN(delay) || delay < 0 {
		return b.maxDelay
	}
	if delay >= float64(b.maxDelay) {
		return b.maxDelay
	}

	return time.Duration(delay)
}

func (b *ExponentialBackoff) Reset() {
	// No state to reset — the uniform source is stateless per call.
}

// LinearBackoff computes delay = min(initialDelay + increment*(attempt-1), maxDelay)
type LinearBackoff struct {
	initialDelay time.Duration
	increment    time.Duration
	maxDelay     time.Duration
}

// NewLinearBackoff creates a linear backoff policy.
func NewLinearBackoff(initialDelay, increment, maxDelay time.Duration) *LinearBackoff {
	if initialDelay < 0 {
		initialDelay = 0
	}
	if increment < 0 {
		increment = 0
	}
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}
	return &LinearBackoff{
		initialDelay: initialDelay,
		increment:    increment,
		maxDelay:     maxDelay,
	}
}

func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Overflow-safe: detect an overflowing multiplication before it happens
	// rather than after.
	//
	// If increment*(attempt-1) would exceed maxDelay-initialDelay, the
	// result must exceed maxDelay, so return it directly. Computing
	// maxMultiplier = (maxDelay-initialDelay)/increment lets us decide
	// without ever performing the overflowing multiplication.
	if b.increment > 0 && attempt > 1 {
		available := b.maxDelay - b.initialDelay
		if available < 0 {
			// Defensive: the constructor already guarantees
			// maxDelay >= initialDelay, but this guards direct struct
			// construction that bypasses it.
			return b.maxDelay
		}
		maxMultiplier := available / b.increment
		if time.Duration(attempt-1) > maxMultiplier {
			return b.maxDelay
		}
	}

	// Safe to compute now; this cannot overflow.
	incrementPart := b.increment * time.Duration(attempt-1)
	delay := b.initialDelay + incrementPart
	if delay > b.maxDelay {
		delay = b.maxDelay
	}
	return delay
}

// DecorrelatedJitterBackoff implements the AWS "decorrelated jitter"
// algorithm: delay = uniform(baseDelay, min(maxDelay, prevDelay*3)).
//
// Unlike ExponentialBackoff, this policy is stateful — NextDelay must be
// called in sequence for consecutive attempts, and Reset() must be called
// between independent retry sequences sharing one instance.
type DecorrelatedJitterBackoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	source    xclock.UniformSource
	prev      time.Duration
}

// DecorrelatedJitterOption configures a DecorrelatedJitterBackoff.
type DecorrelatedJitterOption func(*DecorrelatedJitterBackoff)

// WithDecorrelatedSource injects the uniform-[0,1) source. Defaults to
// xclock.CryptoSource.
func WithDecorrelatedSource(s xclock.UniformSource) DecorrelatedJitterOption {
	return func(b *DecorrelatedJitterBackoff) {
		if s != nil {
			b.source = s
		}
	}
}

// NewDecorrelatedJitterBackoff creates a decorrelated-jitter backoff
// policy. baseDelay is both the floor of every delay and the starting
// point for the first attempt; maxDelay caps the growth.
func NewDecorrelatedJitterBackoff(baseDelay, maxDelay time.Duration, opts ...DecorrelatedJitterOption) *DecorrelatedJitterBackoff {
	if baseDelay < 0 {
		baseDelay = 0
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	b := &DecorrelatedJitterBackoff{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		source:    xclock.CryptoSource{},
		prev:      baseDelay,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *DecorrelatedJitterBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt == 1 {
		b.prev = b.baseDelay
	}

	ceiling := b.prev * 3
	if ceiling < b.prev {
		// integer overflow from multiplying by 3
		ceiling = b.maxDelay
	}
	if ceiling > b.maxDelay {
		ceiling = b.maxDelay
	}
	if ceiling < b.baseDelay {
		ceiling = b.baseDelay
	}

	span := ceiling - b.baseDelay
	delay := b.baseDelay
	if span > 0 {
		delay += time.Duration(b.source.Float64() * float64(span))
	}

	b.prev = delay
	return delay
}

// Reset clears state so the next NextDelay(1) call starts a fresh sequence.
func (b *DecorrelatedJitterBackoff) Reset() {
	b.prev = b.baseDelay
}

// NoBackoff never delays.
type NoBackoff struct{}

// NewNoBackoff creates a zero-delay backoff policy.
func NewNoBackoff() *NoBackoff {
	return &NoBackoff{}
}

func (b *NoBackoff) NextDelay(_ int) time.Duration {
	return 0
}

var (
	_ BackoffPolicy     = (*FixedBackoff)(nil)
	_ BackoffPolicy     = (*ExponentialBackoff)(nil)
	_ BackoffPolicy     = (*LinearBackoff)(nil)
	_ BackoffPolicy     = (*DecorrelatedJitterBackoff)(nil)
	_ BackoffPolicy     = (*NoBackoff)(nil)
	_ ResettableBackoff = (*ExponentialBackoff)(nil)
	_ ResettableBackoff = (*DecorrelatedJitterBackoff)(nil)
)
