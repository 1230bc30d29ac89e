package xretry

import "context"

// FixedRetryPolicy retries a fixed number of times.
type FixedRetryPolicy struct {
	maxAttempts int
}

// NewFixedRetry creates a fixed-count retry policy.
// maxAttempts is the maximum number of attempts (including the first),
// clamped to a minimum of 1.
func NewFixedRetry(maxAttempts int) *FixedRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FixedRetryPolicy{maxAttempts: maxAttempts}
}

func (p *FixedRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

func (p *FixedRetryPolicy) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	return IsRetryable(err)
}

// AlwaysRetryPolicy retries without limit. Use with care — only context
// cancellation or a permanent error stops it.
type AlwaysRetryPolicy struct{}

// NewAlwaysRetry creates an unbounded retry policy.
func NewAlwaysRetry() *AlwaysRetryPolicy {
	return &AlwaysRetryPolicy{}
}

func (p *AlwaysRetryPolicy) MaxAttempts() int {
	return 0 // 0 means unlimited
}

func (p *AlwaysRetryPolicy) ShouldRetry(ctx context.Context, _ int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return IsRetryable(err)
}

// NeverRetryPolicy never retries.
type NeverRetryPolicy struct{}

// NewNeverRetry creates a no-retry policy.
func NewNeverRetry() *NeverRetryPolicy {
	return &NeverRetryPolicy{}
}

func (p *NeverRetryPolicy) MaxAttempts() int {
	return 1
}

func (p *NeverRetryPolicy) ShouldRetry(_ context.Context, _ int, _ error) bool {
	return false
}

var (
	_ RetryPolicy = (*FixedRetryPolicy)(nil)
	_ RetryPolicy = (*AlwaysRetryPolicy)(nil)
	_ RetryPolicy = (*NeverRetryPolicy)(nil)
)
