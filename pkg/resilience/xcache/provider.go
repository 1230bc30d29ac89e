package xcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Provider is the pluggable (get, put) cache backend a Strategy sits on top
// of. TryGet reports a cache miss by returning hit=false with a nil error;
// it returns a non-nil error only for a genuine backend failure. Either
// method may fail — the Strategy isolates those errors from the wrapped
// call via onGetError/onPutError.
type Provider interface {
	TryGet(ctx context.Context, key string) (hit bool, value []byte, err error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// memoryProvider adapts a ristretto-backed Memory into a Provider.
type memoryProvider struct {
	mem Memory
}

// NewMemoryProvider adapts mem into a Provider suitable for Strategy.
func NewMemoryProvider(mem Memory) Provider {
	return &memoryProvider{mem: mem}
}

func (p *memoryProvider) TryGet(_ context.Context, key string) (bool, []byte, error) {
	value, ok := p.mem.Client().Get(key)
	if !ok {
		return false, nil, nil
	}
	return true, value, nil
}

func (p *memoryProvider) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if !p.mem.Client().SetWithTTL(key, value, int64(len(value)), ttl) {
		return ErrCacheRejected
	}
	p.mem.Wait()
	return nil
}

// redisProvider adapts a go-redis-backed Redis into a Provider.
type redisProvider struct {
	r Redis
}

// NewRedisProvider adapts r into a Provider suitable for Strategy.
func NewRedisProvider(r Redis) Provider {
	return &redisProvider{r: r}
}

func (p *redisProvider) TryGet(ctx context.Context, key string) (bool, []byte, error) {
	value, err := p.r.Client().Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, value, nil
}

func (p *redisProvider) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.r.Client().Set(ctx, key, value, ttl).Err()
}

var (
	_ Provider = (*memoryProvider)(nil)
	_ Provider = (*redisProvider)(nil)
)
