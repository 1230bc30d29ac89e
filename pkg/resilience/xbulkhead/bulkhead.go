package xbulkhead

import (
	"log/slog"
	"sync/atomic"

	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

// Strategy bounds the number of concurrent executions of the wrapped
// operation, queuing excess callers up to a limit before rejecting them.
type Strategy struct {
	name        string
	logger      *slog.Logger
	maxParallel int
	maxQueuing  int

	permits chan struct{}
	queued  atomic.Int64
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithName sets the strategy's name, used in Name() and log lines.
// Default: "bulkhead".
func WithName(name string) Option {
	return func(s *Strategy) { s.name = name }
}

// WithLogger overrides the logger used for rejection diagnostics. A nil
// logger is ignored. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Strategy) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStrategy creates a bulkhead Strategy.
//
// maxParallelization is the number of concurrent executions allowed
// through at once; it must be >= 1. maxQueuing is the number of additional
// callers allowed to wait for a free slot; it must be >= 0. A call that
// finds both full is rejected immediately with BulkheadRejectedError.
func NewStrategy(maxParallelization, maxQueuing int, opts ...Option) (*Strategy, error) {
	if maxParallelization < 1 {
		return nil, ErrInvalidMaxParallelization
	}
	if maxQueuing < 0 {
		return nil, ErrInvalidMaxQueuing
	}
	s := &Strategy{
		name:        "bulkhead",
		logger:      slog.Default(),
		maxParallel: maxParallelization,
		maxQueuing:  maxQueuing,
		permits:     make(chan struct{}, maxParallelization),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name identifies this strategy in diagnostics.
func (s *Strategy) Name() string { return s.name }

// Execute runs next once a permit is available, waiting in the bounded
// queue if every permit is currently held.
func (s *Strategy) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	select {
	case s.permits <- struct{}{}:
		defer func() { <-s.permits }()
		return next(ec)
	default:
	}

	if s.queued.Add(1) > int64(s.maxQueuing) {
		s.queued.Add(-1)
		s.logger.Warn("xbulkhead: rejected, permits and queue both full",
			"name", s.name, "max_parallelization", s.maxParallel, "max_queuing", s.maxQueuing)
		return nil, &xresilience.BulkheadRejectedError{
			MaxParallelization: s.maxParallel,
			MaxQueuing:         s.maxQueuing,
		}
	}
	defer s.queued.Add(-1)

	select {
	case s.permits <- struct{}{}:
		defer func() { <-s.permits }()
		return next(ec)
	case <-ec.Context().Done():
		return nil, &xresilience.OperationCanceledError{Cause: ec.Context().Err()}
	}
}

// ActiveCount reports how many executions are currently holding a permit.
func (s *Strategy) ActiveCount() int { return len(s.permits) }

// QueuedCount reports how many callers are currently waiting for a permit.
func (s *Strategy) QueuedCount() int { return int(s.queued.Load()) }

// MaxParallelization returns the configured permit count.
func (s *Strategy) MaxParallelization() int { return s.maxParallel }

// MaxQueuing returns the configured queue capacity.
func (s *Strategy) MaxQueuing() int { return s.maxQueuing }

var _ xresilience.Strategy = (*Strategy)(nil)
