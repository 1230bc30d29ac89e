package xcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

// Codec (de)serializes a pipeline result for storage as cache bytes.
type Codec interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, target any) error
}

type jsonCodec struct{}

func (jsonCodec) Marshal(value any) ([]byte, error) { return json.Marshal(value) }

func (jsonCodec) Unmarshal(data []byte, target any) error { return json.Unmarshal(data, target) }

// StrategyKeyFunc derives a cache key from an execution. The default keys
// solely on ExecutionContext.OperationKey.
type StrategyKeyFunc func(ec *xresilience.ExecutionContext) string

// StrategyTTLFunc computes a per-value TTL, overriding the Strategy's fixed
// TTL. A non-positive result suppresses the put the same way a non-positive
// fixed TTL does.
type StrategyTTLFunc[T any] func(value T) time.Duration

// OnHitHook fires when a cache lookup finds a value for key.
type OnHitHook func(ctx context.Context, key string)

// OnMissHook fires when a cache lookup finds nothing for key, before next
// is invoked.
type OnMissHook func(ctx context.Context, key string)

// OnPutHook fires after a value produced by next is successfully stored.
type OnPutHook func(ctx context.Context, key string, ttl time.Duration)

// OnGetErrorHook fires when the provider's TryGet fails. The call falls
// through to next regardless.
type OnGetErrorHook func(ctx context.Context, key string, err error)

// OnPutErrorHook fires when the provider's Put fails. The call still
// returns next's result.
type OnPutErrorHook func(ctx context.Context, key string, err error)

// Strategy is a cache-aside xresilience.Strategy: it checks the cache
// before running next, and stores next's result on a miss. T is the
// concrete result type the wrapped pipeline stage produces.
type Strategy[T any] struct {
	name       string
	provider   Provider
	ttl        time.Duration
	ttlFunc    StrategyTTLFunc[T]
	codec      Codec
	keyFunc    StrategyKeyFunc
	onHit      OnHitHook
	onMiss     OnMissHook
	onPut      OnPutHook
	onGetError OnGetErrorHook
	onPutError OnPutErrorHook
}

// StrategyOption configures a Strategy.
type StrategyOption[T any] func(*Strategy[T])

// WithStrategyName sets the strategy's name. Default: "cache".
func WithStrategyName[T any](name string) StrategyOption[T] {
	return func(s *Strategy[T]) { s.name = name }
}

// WithCodec overrides the value codec. Default: JSON via encoding/json.
func WithCodec[T any](codec Codec) StrategyOption[T] {
	return func(s *Strategy[T]) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithStrategyKeyFunc overrides how a cache key is derived from an
// execution. Default: ec.OperationKey.
func WithStrategyKeyFunc[T any](fn StrategyKeyFunc) StrategyOption[T] {
	return func(s *Strategy[T]) {
		if fn != nil {
			s.keyFunc = fn
		}
	}
}

// WithTTLFunc overrides the fixed TTL with one computed from the produced
// value, e.g. to cache errors-as-values for a shorter window than normal
// results.
func WithTTLFunc[T any](fn StrategyTTLFunc[T]) StrategyOption[T] {
	return func(s *Strategy[T]) {
		if fn != nil {
			s.ttlFunc = fn
		}
	}
}

// WithOnHit sets the hook invoked on a cache hit.
func WithOnHit[T any](hook OnHitHook) StrategyOption[T] {
	return func(s *Strategy[T]) { s.onHit = hook }
}

// WithOnMiss sets the hook invoked on a cache miss, before next runs.
func WithOnMiss[T any](hook OnMissHook) StrategyOption[T] {
	return func(s *Strategy[T]) { s.onMiss = hook }
}

// WithOnPut sets the hook invoked after a successful put.
func WithOnPut[T any](hook OnPutHook) StrategyOption[T] {
	return func(s *Strategy[T]) { s.onPut = hook }
}

// WithOnGetError sets the hook invoked when the provider's TryGet fails.
func WithOnGetError[T any](hook OnGetErrorHook) StrategyOption[T] {
	return func(s *Strategy[T]) { s.onGetError = hook }
}

// WithOnPutError sets the hook invoked when the provider's Put fails.
func WithOnPutError[T any](hook OnPutErrorHook) StrategyOption[T] {
	return func(s *Strategy[T]) { s.onPutError = hook }
}

// NewStrategy creates a cache-aside Strategy backed by provider. ttl bounds
// how long a stored result stays valid; a non-positive ttl suppresses
// puts unless overridden per-value via WithTTLFunc.
func NewStrategy[T any](provider Provider, ttl time.Duration, opts ...StrategyOption[T]) (*Strategy[T], error) {
	if provider == nil {
		return nil, ErrNilClient
	}
	s := &Strategy[T]{
		name:     "cache",
		provider: provider,
		ttl:      ttl,
		codec:    jsonCodec{},
		keyFunc: func(ec *xresilience.ExecutionContext) string {
			return ec.OperationKey
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name identifies this strategy in diagnostics.
func (s *Strategy[T]) Name() string { return s.name }

// Execute returns the cached result for this execution's key if present,
// otherwise runs next, caches its result, and returns it. An empty key
// (the default when ExecutionContext.OperationKey was never set) bypasses
// the cache entirely: next runs directly, with no provider interaction.
func (s *Strategy[T]) Execute(next xresilience.Executable, ec *xresilience.ExecutionContext) (any, error) {
	key := s.keyFunc(ec)
	if key == "" {
		return next(ec)
	}

	ctx := ec.Context()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &xresilience.OperationCanceledError{Cause: ctxErr}
	}

	hit, data, err := s.provider.TryGet(ctx, key)
	switch {
	case err != nil:
		if s.onGetError != nil {
			s.onGetError(ctx, key, err)
		}
	case hit:
		if s.onHit != nil {
			s.onHit(ctx, key)
		}
		var out T
		if decodeErr := s.codec.Unmarshal(data, &out); decodeErr != nil {
			return nil, decodeErr
		}
		return out, nil
	default:
		if s.onMiss != nil {
			s.onMiss(ctx, key)
		}
	}

	result, err := next(ec)
	if err != nil {
		return nil, err
	}

	value, _ := result.(T)

	ttl := s.ttl
	if s.ttlFunc != nil {
		ttl = s.ttlFunc(value)
	}
	if ttl > 0 {
		if encoded, encErr := s.codec.Marshal(value); encErr == nil {
			if putErr := s.provider.Put(ctx, key, encoded, ttl); putErr != nil {
				if s.onPutError != nil {
					s.onPutError(ctx, key, putErr)
				}
			} else if s.onPut != nil {
				s.onPut(ctx, key, ttl)
			}
		}
	}

	return value, nil
}

var _ xresilience.Strategy = (*Strategy[any])(nil)
