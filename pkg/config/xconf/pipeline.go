package xconf

import (
	"time"

	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

// Bounds mirrored from the constraint list circuit-breaker and timeout
// options must satisfy: a break duration outside a half-second to a day
// is almost certainly a typo (ms/s/duration-unit confusion), and a
// failure ratio must be a proper probability with at least two samples.
const (
	minBreakDuration = 500 * time.Millisecond
	maxBreakDuration = 24 * time.Hour
	minMinRequests   = 2
)

// RetryOptions configures a pipeline's retry stage.
type RetryOptions struct {
	MaxRetries      int           `koanf:"max_retries"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	Multiplier      float64       `koanf:"multiplier"`
	Jitter          bool          `koanf:"jitter"`
}

// CircuitBreakerOptions configures a pipeline's circuit-breaker stage.
type CircuitBreakerOptions struct {
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
	FailureRatio        float64       `koanf:"failure_ratio"`
	MinRequests         uint32        `koanf:"min_requests"`
	BreakDuration       time.Duration `koanf:"break_duration"`
}

// TimeoutOptions configures a pipeline's timeout stage.
type TimeoutOptions struct {
	Duration    time.Duration `koanf:"duration"`
	Pessimistic bool          `koanf:"pessimistic"`
}

// BulkheadOptions configures a pipeline's bulkhead stage.
type BulkheadOptions struct {
	MaxParallelization int `koanf:"max_parallelization"`
	MaxQueuing         int `koanf:"max_queuing"`
}

// HedgeOptions configures a pipeline's hedging stage.
type HedgeOptions struct {
	MaxAttempts int           `koanf:"max_attempts"`
	Delay       time.Duration `koanf:"delay"`
}

// RateLimitOptions configures a pipeline's rate-limiter stage.
type RateLimitOptions struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
	Burst  int           `koanf:"burst"`
}

// CacheOptions configures a pipeline's cache stage.
type CacheOptions struct {
	TTL time.Duration `koanf:"ttl"`
}

// PipelineOptions is the declarative shape of a resilience pipeline, one
// field per optional stage. A stage with a nil pointer is omitted from the
// pipeline entirely.
type PipelineOptions struct {
	Name           string                 `koanf:"name"`
	Retry          *RetryOptions          `koanf:"retry"`
	CircuitBreaker *CircuitBreakerOptions `koanf:"circuit_breaker"`
	Timeout        *TimeoutOptions        `koanf:"timeout"`
	Bulkhead       *BulkheadOptions       `koanf:"bulkhead"`
	Hedge          *HedgeOptions          `koanf:"hedge"`
	RateLimit      *RateLimitOptions      `koanf:"rate_limit"`
	Cache          *CacheOptions          `koanf:"cache"`
}

// Validate checks every configured stage's constraints, aggregating every
// violation instead of stopping at the first.
func (o PipelineOptions) Validate() error {
	verr := &xresilience.ValidationError{}

	if o.Retry != nil {
		r := o.Retry
		if r.MaxRetries < 0 {
			verr.Add("retry.max_retries must be >= 0, got %d", r.MaxRetries)
		}
		if r.InitialInterval < 0 {
			verr.Add("retry.initial_interval must be >= 0, got %s", r.InitialInterval)
		}
		if r.MaxInterval > 0 && r.InitialInterval > r.MaxInterval {
			verr.Add("retry.initial_interval (%s) must be <= retry.max_interval (%s)", r.InitialInterval, r.MaxInterval)
		}
		if r.Multiplier != 0 && r.Multiplier < 1 {
			verr.Add("retry.multiplier must be >= 1, got %f", r.Multiplier)
		}
	}

	if o.CircuitBreaker != nil {
		cb := o.CircuitBreaker
		if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
			verr.Add("circuit_breaker.failure_ratio must be in (0,1], got %f", cb.FailureRatio)
		}
		if cb.MinRequests != 0 && cb.MinRequests < minMinRequests {
			verr.Add("circuit_breaker.min_requests must be >= %d, got %d", minMinRequests, cb.MinRequests)
		}
		if cb.BreakDuration != 0 && (cb.BreakDuration < minBreakDuration || cb.BreakDuration > maxBreakDuration) {
			verr.Add("circuit_breaker.break_duration must be in [%s,%s], got %s", minBreakDuration, maxBreakDuration, cb.BreakDuration)
		}
	}

	if o.Timeout != nil {
		if o.Timeout.Duration <= 0 {
			verr.Add("timeout.duration must be > 0, got %s", o.Timeout.Duration)
		}
	}

	if o.Bulkhead != nil {
		b := o.Bulkhead
		if b.MaxParallelization < 1 {
			verr.Add("bulkhead.max_parallelization must be >= 1, got %d", b.MaxParallelization)
		}
		if b.MaxQueuing < 0 {
			verr.Add("bulkhead.max_queuing must be >= 0, got %d", b.MaxQueuing)
		}
	}

	if o.Hedge != nil {
		h := o.Hedge
		if h.MaxAttempts < 1 {
			verr.Add("hedge.max_attempts must be >= 1, got %d", h.MaxAttempts)
		}
		if h.Delay < 0 {
			verr.Add("hedge.delay must be >= 0, got %s", h.Delay)
		}
	}

	if o.RateLimit != nil {
		rl := o.RateLimit
		if rl.Limit < 1 {
			verr.Add("rate_limit.limit must be >= 1, got %d", rl.Limit)
		}
		if rl.Window <= 0 {
			verr.Add("rate_limit.window must be > 0, got %s", rl.Window)
		}
	}

	if o.Cache != nil {
		if o.Cache.TTL <= 0 {
			verr.Add("cache.ttl must be > 0, got %s", o.Cache.TTL)
		}
	}

	return verr.ErrOrNil()
}

// LoadPipelineConfig loads a PipelineOptions from the YAML or JSON file at
// path and validates it, wrapping New and Unmarshal so a caller wanting the
// declarative surface never has to touch Config directly.
func LoadPipelineConfig(path string) (PipelineOptions, error) {
	cfg, err := New(path)
	if err != nil {
		return PipelineOptions{}, err
	}
	return UnmarshalPipelineConfig(cfg)
}

// UnmarshalPipelineConfig reads and validates a PipelineOptions from an
// already-loaded Config, for callers that manage the Config's lifecycle
// themselves (hot-reload, bytes-sourced config, and so on).
func UnmarshalPipelineConfig(cfg Config) (PipelineOptions, error) {
	var opts PipelineOptions
	if err := cfg.Unmarshal("", &opts); err != nil {
		return PipelineOptions{}, err
	}
	if err := opts.Validate(); err != nil {
		return PipelineOptions{}, err
	}
	return opts, nil
}
