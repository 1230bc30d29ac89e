package faultline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faultline "github.com/faultline/faultline"
	"github.com/faultline/faultline/pkg/resilience/xlimit"
	"github.com/faultline/faultline/pkg/resilience/xresilience"
	"github.com/faultline/faultline/pkg/resilience/xretry"
	"github.com/faultline/faultline/pkg/resilience/xtimeout"
)

func TestBuilder_ComposesRetryTimeoutAndFallback(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0

	pipeline := faultline.NewBuilder().
		AddStaticFallback("fallback value").
		AddRetry(xretry.WithStrategyMaxRetries(2), xretry.WithStrategyBackoff(xretry.NewNoBackoff())).
		AddTimeout(time.Second, xtimeout.WithMode(xtimeout.Optimistic)).
		Build()

	outcome := xresilience.Execute[any](pipeline, context.Background(), func(_ *xresilience.ExecutionContext) (any, error) {
		attempts++
		return nil, boom
	})

	require.True(t, outcome.IsSuccess())
	value, ok := outcome.Result()
	require.True(t, ok)
	assert.Equal(t, "fallback value", value)
	assert.Equal(t, 3, attempts)
}

func TestBuilder_CircuitBreakerWiresIntoPipeline(t *testing.T) {
	pipeline := faultline.NewBuilder().
		AddCircuitBreaker("checkout").
		Build()

	outcome := xresilience.Execute[any](pipeline, context.Background(), func(_ *xresilience.ExecutionContext) (any, error) {
		return "ok", nil
	})

	require.True(t, outcome.IsSuccess())
	value, _ := outcome.Result()
	assert.Equal(t, "ok", value)
}

func TestBuilder_AddAdvancedCircuitBreaker_RollingWindowRatioTrip(t *testing.T) {
	pipeline := faultline.NewBuilder().
		AddAdvancedCircuitBreaker("checkout", 10*time.Second, time.Second, 0.5, 10).
		Build()

	boom := errors.New("boom")
	call := func(fail bool) xresilience.Outcome[any] {
		return xresilience.Execute[any](pipeline, context.Background(), func(_ *xresilience.ExecutionContext) (any, error) {
			if fail {
				return nil, boom
			}
			return "ok", nil
		})
	}

	// Nine failures then one success: ten requests, throughput satisfied,
	// but the ratio is only evaluated once that tenth call completes.
	for i := 0; i < 9; i++ {
		outcome := call(true)
		require.False(t, outcome.IsSuccess())
	}
	tenth := call(false)
	require.True(t, tenth.IsSuccess())

	// 9/10 = 0.9 > 0.5 with minRequests satisfied: the breaker is now open,
	// so the next call is rejected without ever reaching the callback.
	eleventh := call(false)
	require.False(t, eleventh.IsSuccess())
	var broken *xresilience.BrokenCircuitError
	require.ErrorAs(t, eleventh.Err(), &broken)
}

func TestBuilder_AddRateLimit_NilLimiterPanics(t *testing.T) {
	assert.Panics(t, func() {
		faultline.NewBuilder().AddRateLimit(nil)
	})
}

func TestBuilder_AddBulkhead_InvalidArgsPanics(t *testing.T) {
	assert.Panics(t, func() {
		faultline.NewBuilder().AddBulkhead(0, 0)
	})
}

func TestBuilder_AddFallback_CustomHandler(t *testing.T) {
	boom := errors.New("boom")

	pipeline := faultline.NewBuilder().
		AddFallback(func(_ *xresilience.ExecutionContext, _ any, faultedErr error) (any, error) {
			return nil, &xresilience.OperationCanceledError{Cause: faultedErr}
		}).
		Build()

	outcome := xresilience.Execute[any](pipeline, context.Background(), func(_ *xresilience.ExecutionContext) (any, error) {
		return nil, boom
	})

	require.False(t, outcome.IsSuccess())
	var canceled *xresilience.OperationCanceledError
	require.ErrorAs(t, outcome.Err(), &canceled)
}

func TestBuilder_AddRateLimit_LocalLimiterAllows(t *testing.T) {
	limiter, err := xlimit.NewLocal()
	require.NoError(t, err)

	pipeline := faultline.NewBuilder().
		AddRateLimit(limiter).
		Build()

	outcome := xresilience.Execute[any](pipeline, context.Background(), func(_ *xresilience.ExecutionContext) (any, error) {
		return "ran", nil
	}, xresilience.WithOperationKey("op"))

	require.True(t, outcome.IsSuccess())
	value, _ := outcome.Result()
	assert.Equal(t, "ran", value)
}

func TestAddCache_TypedResult(t *testing.T) {
	provider := &memoryProviderStub{store: make(map[string][]byte)}

	pipeline := faultline.AddCache[string](faultline.NewBuilder(), provider, time.Minute).Build()

	outcome := xresilience.Execute[any](pipeline, context.Background(), func(_ *xresilience.ExecutionContext) (any, error) {
		return "cached value", nil
	}, xresilience.WithOperationKey("product:1"))

	require.True(t, outcome.IsSuccess())
	value, _ := outcome.Result()
	assert.Equal(t, "cached value", value)
}

type memoryProviderStub struct {
	store map[string][]byte
}

func (m *memoryProviderStub) TryGet(_ context.Context, key string) (bool, []byte, error) {
	data, ok := m.store[key]
	return ok, data, nil
}

func (m *memoryProviderStub) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.store[key] = value
	return nil
}
