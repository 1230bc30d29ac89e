package xresilience

import (
	"context"
	"errors"
)

// Pipeline is an immutable, ordered composition of strategies, built once
// by Builder and safe for concurrent reuse by any number of callers. It
// holds no per-execution state.
type Pipeline struct {
	strategies []Strategy
}

// run wraps callback with every strategy, outermost first, and invokes the
// resulting chain. Strategies are composed inside-out — the last strategy
// in the slice wraps callback directly, the first strategy in the slice is
// the outermost call — mirroring the closure-wrapping composition in
// jonwraymond-toolops/resilience/executor.go.
func (p *Pipeline) run(callback Executable, ec *ExecutionContext) (any, error) {
	next := callback
	for i := len(p.strategies) - 1; i >= 0; i-- {
		s := p.strategies[i]
		inner := next
		next = func(ec *ExecutionContext) (any, error) {
			return s.Execute(inner, ec)
		}
	}
	return next(ec)
}

// ExecuteOption configures the ExecutionContext for a single Execute call.
type ExecuteOption func(*ExecutionContext)

// WithOperationKey sets the ExecutionContext's OperationKey, used by cache
// keying and diagnostics.
func WithOperationKey(key string) ExecuteOption {
	return func(ec *ExecutionContext) { ec.OperationKey = key }
}

// WithSynchronous overrides the default IsSynchronous flag.
func WithSynchronous(sync bool) ExecuteOption {
	return func(ec *ExecutionContext) { ec.IsSynchronous = sync }
}

// Execute runs callback through the pipeline and returns a typed Outcome.
// This is the value-returning surface; pass a callback returning
// (struct{}{}, err) for the void surface. There is no separate async-future
// surface — Go's blocking-call-in-a-goroutine idiom already gives callers
// the future-returning shape by wrapping Execute in `go func(){ ... }()`
// themselves, so a duplicate API is not carried here.
func Execute[T any](p *Pipeline, ctx context.Context, callback func(ec *ExecutionContext) (T, error), opts ...ExecuteOption) Outcome[T] {
	ec := AcquireContext(ctx)
	defer ec.Release()
	for _, opt := range opts {
		opt(ec)
	}

	result, err := p.run(func(ec *ExecutionContext) (any, error) {
		v, err := callback(ec)
		return v, err
	}, ec)
	if err != nil {
		return Failure[T](err)
	}
	typed, _ := result.(T)
	return Success(typed)
}

// ResultKind classifies a PolicyResult for ExecuteAndCapture callers that
// want to distinguish a normal fault from cancellation without inspecting
// the error chain themselves.
type ResultKind int

const (
	// KindSuccess means the outcome's result arm is populated.
	KindSuccess ResultKind = iota
	// KindCanceled means the outcome failed due to cancellation.
	KindCanceled
	// KindFaulted means the outcome failed for any other reason.
	KindFaulted
)

// PolicyResult is the structured result of ExecuteAndCapture: the raw
// Outcome plus a classification of how it terminated.
type PolicyResult[T any] struct {
	Outcome Outcome[T]
	Kind    ResultKind
}

// ExecuteAndCapture runs callback through the pipeline like Execute, but
// never needs the caller to distinguish cancellation from other failures by
// hand — Kind does that.
func ExecuteAndCapture[T any](p *Pipeline, ctx context.Context, callback func(ec *ExecutionContext) (T, error), opts ...ExecuteOption) PolicyResult[T] {
	outcome := Execute(p, ctx, callback, opts...)
	if outcome.IsSuccess() {
		return PolicyResult[T]{Outcome: outcome, Kind: KindSuccess}
	}

	var canceled *OperationCanceledError
	if errors.As(outcome.Err(), &canceled) || errors.Is(outcome.Err(), context.Canceled) || errors.Is(outcome.Err(), context.DeadlineExceeded) {
		return PolicyResult[T]{Outcome: outcome, Kind: KindCanceled}
	}
	return PolicyResult[T]{Outcome: outcome, Kind: KindFaulted}
}
