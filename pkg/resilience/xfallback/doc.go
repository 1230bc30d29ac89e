// Package xfallback substitutes a recovery value or delegate operation for
// an outcome a ResultPredicate considers a fault, letting a pipeline
// degrade gracefully instead of surfacing the failure to the caller.
//
// A Strategy is built with either a static value (NewStaticStrategy) or a
// handler that computes a replacement from the faulted outcome
// (NewStrategy); the handler form can itself fail, in which case its error
// is returned instead of the original fault.
package xfallback
