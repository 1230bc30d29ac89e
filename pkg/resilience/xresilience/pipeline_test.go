package xresilience_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

// recordingStrategy counts invocations and optionally short-circuits or
// transforms the outcome, enough to exercise Pipeline's three permitted
// strategy shapes without a full retry/breaker implementation.
type recordingStrategy struct {
	name         string
	calls        atomic.Int32
	shortCircuit bool
	shortValue   any
	shortErr     error
}

func (s *recordingStrategy) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	s.calls.Add(1)
	if s.shortCircuit {
		return s.shortValue, s.shortErr
	}
	return next(ec)
}

func (s *recordingStrategy) Name() string { return s.name }

func TestPipeline_EmptyBuilderIsNoOp(t *testing.T) {
	p := xresilience.NewBuilder().Build()

	calls := 0
	outcome := xresilience.Execute(p, context.Background(), func(ec *xresilience.ExecutionContext) (string, error) {
		calls++
		return "ok", nil
	})

	require.True(t, outcome.IsSuccess())
	v, _ := outcome.Result()
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestPipeline_ComposesOuterToInner(t *testing.T) {
	var order []string
	outer := &recordingStrategy{name: "outer"}
	inner := &recordingStrategy{name: "inner"}

	p := xresilience.NewBuilder().AddStrategy(outer).AddStrategy(inner).Build()

	outcome := xresilience.Execute(p, context.Background(), func(ec *xresilience.ExecutionContext) (int, error) {
		order = append(order, "callback")
		return 7, nil
	})

	require.True(t, outcome.IsSuccess())
	assert.EqualValues(t, 1, outer.calls.Load())
	assert.EqualValues(t, 1, inner.calls.Load())
	assert.Equal(t, []string{"callback"}, order)
}

func TestPipeline_ShortCircuitSkipsCallback(t *testing.T) {
	sentinel := errors.New("rejected")
	rejecting := &recordingStrategy{name: "reject", shortCircuit: true, shortErr: sentinel}

	p := xresilience.NewBuilder().AddStrategy(rejecting).Build()

	called := false
	outcome := xresilience.Execute(p, context.Background(), func(ec *xresilience.ExecutionContext) (int, error) {
		called = true
		return 0, nil
	})

	assert.False(t, called)
	assert.False(t, outcome.IsSuccess())
	assert.ErrorIs(t, outcome.Err(), sentinel)
}

func TestBuilder_DuplicateStrategyPanics(t *testing.T) {
	s := &recordingStrategy{name: "dup"}
	b := xresilience.NewBuilder().AddStrategy(s)

	assert.Panics(t, func() {
		b.AddStrategy(s)
	})
}

func TestBuilder_ReuseAfterBuildPanics(t *testing.T) {
	b := xresilience.NewBuilder()
	b.Build()

	assert.Panics(t, func() {
		b.Build()
	})
	assert.Panics(t, func() {
		b.AddStrategy(&recordingStrategy{name: "late"})
	})
}

func TestExecuteAndCapture_ClassifiesCancellation(t *testing.T) {
	p := xresilience.NewBuilder().Build()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := xresilience.ExecuteAndCapture(p, ctx, func(ec *xresilience.ExecutionContext) (int, error) {
		select {
		case <-ec.Context().Done():
			return 0, &xresilience.OperationCanceledError{Cause: ec.Context().Err()}
		default:
			return 1, nil
		}
	})

	assert.Equal(t, xresilience.KindCanceled, result.Kind)
}

func TestExecuteAndCapture_ClassifiesFault(t *testing.T) {
	p := xresilience.NewBuilder().Build()
	result := xresilience.ExecuteAndCapture(p, context.Background(), func(ec *xresilience.ExecutionContext) (int, error) {
		return 0, errors.New("boom")
	})

	assert.Equal(t, xresilience.KindFaulted, result.Kind)
}

func TestOperationKey_PropagatesToContext(t *testing.T) {
	p := xresilience.NewBuilder().Build()
	var seen string
	xresilience.Execute(p, context.Background(), func(ec *xresilience.ExecutionContext) (int, error) {
		seen = ec.OperationKey
		return 0, nil
	}, xresilience.WithOperationKey("order:42"))

	assert.Equal(t, "order:42", seen)
}

func TestPropertyBag_RoundTrips(t *testing.T) {
	key := xresilience.NewPropertyKey[string]("trace-id")
	p := xresilience.NewBuilder().Build()

	xresilience.Execute(p, context.Background(), func(ec *xresilience.ExecutionContext) (int, error) {
		_, ok := xresilience.GetProperty(ec, key)
		assert.False(t, ok)
		xresilience.SetProperty(ec, key, "abc-123")
		v, ok := xresilience.GetProperty(ec, key)
		assert.True(t, ok)
		assert.Equal(t, "abc-123", v)
		return 0, nil
	})
}
