// Package xmetrics defines a transport-agnostic tracing/metrics interface
// that libraries can call into without depending on a specific backend.
// Callers wire in whatever Observer implementation fits their stack; a
// caller that doesn't care gets NoopObserver for free.
package xmetrics

import (
	"context"
	"strconv"
)

// Kind classifies the kind of operation a span represents.
type Kind int

const (
	// KindInternal is an internal operation with no remote counterpart.
	KindInternal Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindServer:
		return "Server"
	case KindClient:
		return "Client"
	case KindProducer:
		return "Producer"
	case KindConsumer:
		return "Consumer"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Status is the outcome recorded when a span ends.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Attr is a single key/value span attribute.
type Attr struct {
	Key   string
	Value any
}

// String creates a string-valued Attr.
func String(key, value string) Attr { return Attr{Key: key, Value: value} }

// Bool creates a bool-valued Attr.
func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

// Int creates an int-valued Attr.
func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

// SpanOptions configures a new span.
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result is recorded when a span ends.
type Result struct {
	// Status defaults to derived-from-Err when left empty: StatusError if
	// Err is non-nil, StatusOK otherwise.
	Status Status
	Err    error
	Attrs  []Attr
}

// Span represents one observed unit of work.
type Span interface {
	End(result Result)
}

// Observer is the seam between library code and a tracing/metrics
// backend.
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver discards everything. It's the zero-value-safe default for
// any component that takes an Observer.
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan discards End.
type NoopSpan struct{}

func (NoopSpan) End(_ Result) {}

// Start begins a span through observer, normalizing away every nil case a
// caller might hit: nil ctx becomes context.Background(), a nil observer
// or a well-behaved-but-lazy Observer that returns a nil Span or context
// all fall back to safe non-nil values.
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}
