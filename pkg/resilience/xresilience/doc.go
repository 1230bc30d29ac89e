// Package xresilience defines the execution substrate shared by every
// strategy under pkg/resilience: the Outcome result carrier, the pooled
// ExecutionContext, the Strategy contract, and the Pipeline that composes
// strategies into one callable unit.
//
// # Shape
//
// A Strategy wraps a continuation:
//
//	Execute(next Executable, ec *ExecutionContext) (any, error)
//
// next is either the caller's callback or the next strategy inward. A
// Pipeline is built outer-to-inner by Builder and, once built, is safe for
// concurrent reuse by any number of callers — it holds no per-execution
// state of its own.
//
// # Notes
//
//   - Strategies exchange (any, error) internally, never a generic Outcome[T]
//     directly — this keeps every concrete strategy a plain, non-generic
//     type, with type safety restored only at the outer Execute[T] boundary.
//   - ExecutionContext is pooled; callers must not retain a reference past
//     the call that acquired it.
//   - Strategies must not hold their own internal locks across invocation of
//     next — the controller/permit/provider lock, if any, is released before
//     the continuation runs.
package xresilience
