// Package randstate is a small, explicitly owned source of 128-bit random
// values used to key hash containers.
//
// Values come from a Park-Miller-Lehmer generator (multiplier 48271,
// modulus 2^31-1). The generator seeds itself lazily from the millisecond
// part of the current time the first time a value is drawn. It is not
// cryptographically secure.
package randstate

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	multiplier = 48271
	modulus    = 2_147_483_647 // 2^31 - 1
)

// Uint128 is a 128-bit value split into two 64-bit halves.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

func (u Uint128) String() string {
	return fmt.Sprintf("%016x%016x", u.Hi, u.Lo)
}

// Source produces 128-bit values. Safe for concurrent use.
type Source struct {
	mu    sync.Mutex
	clock clock.Clock
	seed  uint32 // 0 means "not seeded yet"
}

// New returns a source that seeds itself from c on first use.
// A nil clock means the wall clock.
func New(c clock.Clock) *Source {
	if c == nil {
		c = clock.New()
	}
	return &Source{clock: c}
}

// NewSeeded returns a source with a fixed seed, for reproducible output.
func NewSeeded(seed uint32) *Source {
	s := New(nil)
	s.Reset(seed)
	return s
}

// Reset replaces the generator state. A seed congruent to 0 modulo 2^31-1
// clears the state, so the next draw seeds from the clock again.
func (s *Source) Reset(seed uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = seed % modulus
}

// Next advances the generator four times and concatenates the 32-bit
// results, first result in the most significant word.
func (s *Source) Next() Uint128 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == 0 {
		s.seed = seedFrom(s.clock.Now())
	}

	var w [4]uint64
	for i := range w {
		s.seed = uint32(uint64(s.seed) * multiplier % modulus)
		w[i] = uint64(s.seed)
	}
	return Uint128{
		Hi: w[0]<<32 | w[1],
		Lo: w[2]<<32 | w[3],
	}
}

// Keys draws one value and splits it into a pair of hash keys:
// k0 is the low half, k1 the high half.
func (s *Source) Keys() (k0, k1 uint64) {
	v := s.Next()
	return v.Lo, v.Hi
}

// seedFrom uses the sub-second milliseconds of t. Zero would lock the
// generator at zero forever, so it becomes 1.
func seedFrom(t time.Time) uint32 {
	ms := uint32(t.Nanosecond() / int(time.Millisecond))
	if ms == 0 {
		return 1
	}
	return ms
}
