package xbreaker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline/pkg/resilience/xbreaker"
	"github.com/faultline/faultline/pkg/resilience/xretry"
)

func newTestRetryer() *xretry.Retryer {
	return xretry.NewRetryer(
		xretry.WithRetryPolicy(xretry.NewFixedRetry(3)),
		xretry.WithBackoffPolicy(xretry.NewNoBackoff()),
	)
}

func TestNewBreakerRetryer_NilArgs(t *testing.T) {
	_, err := xbreaker.NewBreakerRetryer(nil, newTestRetryer())
	assert.ErrorIs(t, err, xbreaker.ErrNilBreaker)

	_, err = xbreaker.NewBreakerRetryer(xbreaker.NewBreaker("svc"), nil)
	assert.ErrorIs(t, err, xbreaker.ErrNilRetryer)
}

func TestBreakerRetryer_DoWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	b := xbreaker.NewBreaker("svc", xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(10)))
	combo, err := xbreaker.NewBreakerRetryer(b, newTestRetryer())
	require.NoError(t, err)

	attempts := 0
	err = combo.DoWithRetry(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBreakerRetryer_TripsMidRetry(t *testing.T) {
	b := xbreaker.NewBreaker("svc", xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(2)))
	combo, err := xbreaker.NewBreakerRetryer(b, newTestRetryer())
	require.NoError(t, err)

	boom := errors.New("boom")
	err = combo.DoWithRetry(context.Background(), func(_ context.Context) error {
		return boom
	})

	assert.Error(t, err)
	assert.Equal(t, xbreaker.StateOpen, b.State())
}

func TestExecuteWithRetry_TypedResult(t *testing.T) {
	b := xbreaker.NewBreaker("svc")
	combo, err := xbreaker.NewBreakerRetryer(b, newTestRetryer())
	require.NoError(t, err)

	result, err := xbreaker.ExecuteWithRetry(context.Background(), combo, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestNewRetryThenBreak_NilArgs(t *testing.T) {
	_, err := xbreaker.NewRetryThenBreak(nil, xbreaker.NewBreaker("svc"))
	assert.ErrorIs(t, err, xbreaker.ErrNilRetryer)

	_, err = xbreaker.NewRetryThenBreak(newTestRetryer(), nil)
	assert.ErrorIs(t, err, xbreaker.ErrNilBreaker)
}

func TestRetryThenBreak_RetriesDoNotAffectBreakerUntilFinalResult(t *testing.T) {
	b := xbreaker.NewBreaker("svc", xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(1)))
	rtb, err := xbreaker.NewRetryThenBreak(newTestRetryer(), b)
	require.NoError(t, err)

	attempts := 0
	err = rtb.Do(context.Background(), func(_ context.Context) error {
		attempts++
		return errors.New("always fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts) // all 3 retries ran; breaker only saw the final outcome
	assert.Equal(t, uint32(1), rtb.Counts().TotalFailures)
	assert.Equal(t, xbreaker.StateOpen, rtb.State())
}

func TestRetryThenBreak_RejectsWhenOpen(t *testing.T) {
	b := xbreaker.NewBreaker("svc", xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(1)))
	rtb, err := xbreaker.NewRetryThenBreak(newTestRetryer(), b)
	require.NoError(t, err)

	_ = rtb.Do(context.Background(), func(_ context.Context) error {
		return errors.New("always fails")
	})
	require.Equal(t, xbreaker.StateOpen, rtb.State())

	calls := 0
	err = rtb.Do(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})

	assert.True(t, xbreaker.IsOpen(err))
	assert.Equal(t, 0, calls)
}

func TestNewRetryThenBreakWithConfig(t *testing.T) {
	rtb, err := xbreaker.NewRetryThenBreakWithConfig("svc", newTestRetryer(),
		xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)),
	)
	require.NoError(t, err)
	assert.Equal(t, xbreaker.StateClosed, rtb.State())
}

func TestExecuteRetryThenBreak_TypedResult(t *testing.T) {
	rtb, err := xbreaker.NewRetryThenBreak(newTestRetryer(), xbreaker.NewBreaker("svc"))
	require.NoError(t, err)

	result, err := xbreaker.ExecuteRetryThenBreak(context.Background(), rtb, func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}
