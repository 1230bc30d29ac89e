package xresilience

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ExecutionContext is the mutable per-execution record threaded through a
// Pipeline: cancellation, operation metadata, and a property bag for
// out-of-band strategy communication (e.g. cache key inputs).
//
// Contexts are pooled: acquired at the outer entry point by Execute,
// released when it returns. Callers must not retain a reference past that
// call.
type ExecutionContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	// ExecutionID is a per-execution correlation identifier, generated on
	// acquisition. Used for structured logging across strategy boundaries.
	ExecutionID string

	// OperationKey optionally identifies the logical operation. Used as the
	// default cache key and surfaces in BrokenCircuit/error diagnostics.
	OperationKey string

	// IsSynchronous is advisory: it lets a strategy pick a blocking wait
	// over a yielding one where both are meaningful. Every strategy in this
	// module blocks (Go has no cooperative-yield distinct from blocking on
	// a channel), so this flag is currently read-only informational state
	// carried for API parity with the source design.
	IsSynchronous bool

	// ContinueOnCapturedContext is carried for API parity with platforms
	// that have UI-thread affinity; it is a no-op in Go.
	ContinueOnCapturedContext bool

	mu    sync.RWMutex
	props map[any]any
}

var contextPool = sync.Pool{
	New: func() any { return &ExecutionContext{} },
}

// AcquireContext takes an ExecutionContext from the pool, linking its
// cancellation to parent. The returned context.Context (via Context()) is
// canceled whenever parent is, or when Release cancels it explicitly.
func AcquireContext(parent context.Context) *ExecutionContext {
	if parent == nil {
		parent = context.Background()
	}
	ec, _ := contextPool.Get().(*ExecutionContext)
	ctx, cancel := context.WithCancel(parent)
	ec.ctx = ctx
	ec.cancel = cancel
	ec.ExecutionID = uuid.NewString()
	ec.OperationKey = ""
	ec.IsSynchronous = true
	ec.ContinueOnCapturedContext = false
	return ec
}

// Release cancels the context's internal cancellation scope (releasing any
// goroutines parked on Context().Done() that were only waiting on this
// execution, not the parent) and returns the ExecutionContext to the pool.
// Guaranteed to be called on every path by every Strategy that acquires a
// context — see Pipeline.run.
func (ec *ExecutionContext) Release() {
	ec.cancel()
	ec.mu.Lock()
	ec.props = nil
	ec.mu.Unlock()
	contextPool.Put(ec)
}

// Context returns the execution-scoped context.Context. It is canceled when
// the parent is canceled, when the owning Execute call returns, or by any
// strategy (timeout, hedging) that links a child cancellation into it.
func (ec *ExecutionContext) Context() context.Context {
	return ec.ctx
}

// WithContext replaces the execution-scoped context.Context, used by
// strategies (timeout, hedging) that need to install a derived
// context.WithTimeout/WithCancel for the remainder of the pipeline. The
// caller is responsible for arranging for the derived context's cancel
// function to eventually run; ExecutionContext.Release only cancels the
// context installed by AcquireContext.
func (ec *ExecutionContext) WithContext(ctx context.Context) {
	ec.ctx = ctx
}

// PropertyKey is a typed key into the ExecutionContext property bag.
// Distinct PropertyKey[T] values with the same name are distinct keys —
// the name exists only for diagnostics.
type PropertyKey[T any] struct {
	name string
}

// NewPropertyKey creates a typed property key. name is used only in
// diagnostics; identity is by pointer-free value equality of the returned
// key, so two calls with the same name produce independent keys.
func NewPropertyKey[T any](name string) PropertyKey[T] {
	return PropertyKey[T]{name: name}
}

// String returns the key's diagnostic name.
func (k PropertyKey[T]) String() string {
	return k.name
}

// SetProperty stores a value in the execution's property bag. Package-level
// (not a method) because Go forbids generic methods on non-generic
// receivers.
func SetProperty[T any](ec *ExecutionContext, key PropertyKey[T], value T) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.props == nil {
		ec.props = make(map[any]any)
	}
	ec.props[key] = value
}

// GetProperty retrieves a value from the execution's property bag.
func GetProperty[T any](ec *ExecutionContext, key PropertyKey[T]) (T, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	var zero T
	if ec.props == nil {
		return zero, false
	}
	v, ok := ec.props[key]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
