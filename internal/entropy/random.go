// Package entropy supplies the random numbers behind stochastic outcomes
// such as shipment loss. A seeded source makes runs reproducible; the crypto
// source is used when no seed is configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand/v2"
	"sync"
)

// Source yields floats in [0, 1).
type Source interface {
	Float() float64
}

// Seeded is a deterministic, goroutine-safe source.
type Seeded struct {
	mu  sync.Mutex
	pcg *mrand.PCG
	rng *mrand.Rand
}

// NewSeeded returns a source that replays the same sequence for the same seed.
func NewSeeded(seed int64) *Seeded {
	pcg := mrand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)
	return &Seeded{pcg: pcg, rng: mrand.New(pcg)}
}

// Float returns the next value in [0, 1).
func (s *Seeded) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// State captures the position in the sequence.
func (s *Seeded) State() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pcg.MarshalBinary()
}

// Restore rewinds to a position captured by State.
func (s *Seeded) Restore(state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pcg.UnmarshalBinary(state)
}

// Crypto draws from crypto/rand.
type Crypto struct{}

// Float returns a value in [0, 1). Falls back to math/rand if crypto/rand fails.
func (Crypto) Float() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand failed, using math/rand", "error", err)
		return mrand.Float64()
	}
	// 53 bits of mantissa.
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) / float64(1<<53)
}

// New returns a seeded source for a non-zero seed and a crypto source otherwise.
func New(seed int64) Source {
	if seed == 0 {
		return Crypto{}
	}
	return NewSeeded(seed)
}

// Roll reports whether an event with probability p happens.
func Roll(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return src.Float() < p
}
