package xhedge_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline/pkg/resilience/xhedge"
	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

func TestStrategy_SingleAttemptSuccess(t *testing.T) {
	s := xhedge.NewStrategy(1, time.Millisecond)
	ec := xresilience.AcquireContext(context.Background())
	defer ec.Release()

	value, err := s.Execute(func(_ *xresilience.ExecutionContext) (any, error) {
		return "ok", nil
	}, ec)

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}

func TestStrategy_SecondAttemptWinsWhenFirstIsSlow(t *testing.T) {
	s := xhedge.NewStrategy(2, 15*time.Millisecond)
	ec := xresilience.AcquireContext(context.Background())
	defer ec.Release()

	var attempts atomic.Int32
	value, err := s.Execute(func(_ *xresilience.ExecutionContext) (any, error) {
		n := attempts.Add(1)
		if n == 1 {
			time.Sleep(time.Hour)
			return "slow", nil
		}
		return "fast", nil
	}, ec)

	require.NoError(t, err)
	assert.Equal(t, "fast", value)
}

func TestStrategy_ReturnsLastFaultWhenAllAttemptsFail(t *testing.T) {
	s := xhedge.NewStrategy(2, time.Millisecond)
	ec := xresilience.AcquireContext(context.Background())
	defer ec.Release()

	boom := errors.New("boom")
	_, err := s.Execute(func(_ *xresilience.ExecutionContext) (any, error) {
		return nil, boom
	}, ec)

	assert.ErrorIs(t, err, boom)
}

func TestStrategy_ParentCancellationStopsTheRace(t *testing.T) {
	s := xhedge.NewStrategy(2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	ec := xresilience.AcquireContext(ctx)
	defer ec.Release()

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Execute(func(_ *xresilience.ExecutionContext) (any, error) {
			close(started)
			<-time.After(time.Hour)
			return nil, nil
		}, ec)
		errCh <- err
	}()

	<-started
	cancel()

	var canceled *xresilience.OperationCanceledError
	require.ErrorAs(t, <-errCh, &canceled)
}

func TestStrategy_CustomPredicateTreatsValueAsFault(t *testing.T) {
	s := xhedge.NewStrategy(2, 5*time.Millisecond, xhedge.WithPredicate(func(value any, err error) bool {
		return err != nil || value == "bad"
	}))
	ec := xresilience.AcquireContext(context.Background())
	defer ec.Release()

	var attempts atomic.Int32
	value, err := s.Execute(func(_ *xresilience.ExecutionContext) (any, error) {
		n := attempts.Add(1)
		if n == 1 {
			return "bad", nil
		}
		return "good", nil
	}, ec)

	require.NoError(t, err)
	assert.Equal(t, "good", value)
}
