package xclock

import (
	"crypto/rand"
	"encoding/binary"
)

// UniformSource produces uniformly distributed float64 values in [0, 1).
// Strategies that need randomness (retry jitter, hedging tie-breaks) take
// one of these instead of calling crypto/rand or math/rand directly, so
// tests can substitute a deterministic sequence.
type UniformSource interface {
	Float64() float64
}

// CryptoSource is the production UniformSource, backed by crypto/rand.
// Ported from XKit's xretry randomFloat64 helper: same 53-bit-precision
// construction, same fail-safe-to-zero behavior on read failure (zero
// means "no jitter", never a partially-read or biased value).
type CryptoSource struct{}

const (
	floatBits  = 53
	floatScale = 1.0 / (1 << floatBits)
)

// Float64 returns a value in [0, 1).
func (CryptoSource) Float64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}

// FixedSource is a deterministic UniformSource for tests: it replays a
// fixed sequence of values, repeating the last one once exhausted.
type FixedSource struct {
	values []float64
	next   int
}

// NewFixedSource builds a FixedSource that replays values in order.
func NewFixedSource(values ...float64) *FixedSource {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &FixedSource{values: values}
}

// Float64 returns the next queued value, holding on the last one once the
// sequence is exhausted.
func (s *FixedSource) Float64() float64 {
	v := s.values[s.next]
	if s.next < len(s.values)-1 {
		s.next++
	}
	return v
}

var _ UniformSource = CryptoSource{}
var _ UniformSource = (*FixedSource)(nil)
