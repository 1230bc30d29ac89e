package xresilience

// Executable is the continuation a Strategy invokes: either the caller's
// callback (innermost) or the next strategy in the pipeline.
type Executable func(ec *ExecutionContext) (any, error)

// Strategy is the single operation every resilience strategy implements. A
// Strategy must either:
//   - return without invoking next (short-circuit), or
//   - invoke next exactly once and return its outcome or a transform of it, or
//   - invoke next multiple times (retry, hedging) and return the chosen outcome.
type Strategy interface {
	// Execute runs the strategy's behavior around next.
	Execute(next Executable, ec *ExecutionContext) (any, error)

	// Name identifies the strategy instance for duplicate detection and
	// diagnostics.
	Name() string
}

// noopStrategy is the identity strategy: Build returns it for an empty
// Builder so Pipeline.run never needs a nil check.
type noopStrategy struct{}

func (noopStrategy) Execute(next Executable, ec *ExecutionContext) (any, error) {
	return next(ec)
}

func (noopStrategy) Name() string { return "noop" }

// NoOp is the identity strategy: it invokes next and returns its outcome
// unchanged. Exposed for callers that want an explicit no-op Strategy
// rather than an empty Pipeline.
var NoOp Strategy = noopStrategy{}
