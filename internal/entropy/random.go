// Package entropy provides the seeded random source shared by every stochastic
// decision in a world: task generation, the action lottery, and neighbor selection.
// A Source is never global; it is created once per world and passed down explicitly.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"math"
	mrand "math/rand"
)

// Source is a reproducible pseudo-random generator.
type Source struct {
	seed int64
	rng  *mrand.Rand
}

// New creates a source seeded with seed.
func New(seed int64) *Source {
	return &Source{
		seed: seed,
		rng:  mrand.New(mrand.NewSource(seed)),
	}
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Float returns a uniform float64 in [0, 1).
func (s *Source) Float() float64 {
	return s.rng.Float64()
}

// Intn returns a uniform int in [0, n). Panics if n <= 0, like math/rand.
func (s *Source) Intn(n int) int {
	return s.rng.Intn(n)
}

// Exponential draws from Exp(rate) as -ln(U)/rate.
// U is drawn from (0, 1] so the result is always finite.
func (s *Source) Exponential(rate float64) float64 {
	u := 1 - s.rng.Float64()
	return -math.Log(u) / rate
}

// Normal draws from N(mean, sigma²).
func (s *Source) Normal(mean, sigma float64) float64 {
	return mean + s.rng.NormFloat64()*sigma
}

// LogNormal draws exp(N(mean, sigma²)).
func (s *Source) LogNormal(mean, sigma float64) float64 {
	return math.Exp(s.Normal(mean, sigma))
}

// WeightedIndex runs a roulette wheel over weights and returns the chosen index,
// or -1 if no weight is positive. Candidates are walked in order and the first
// one whose cumulative weight exceeds the draw wins, so equal weights favour
// earlier entries only through draw placement, never through value.
func (s *Source) WeightedIndex(weights []float64) int {
	return roulette(weights, s.rng.Float64)
}

// roulette spins once with u from [0, 1) scaled by the positive total. If
// floating error lets the draw slip past every cumulative bound, the last
// positive entry is returned.
func roulette(weights []float64, u func() float64) int {
	total := 0.0
	last := -1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
	}
	if last < 0 {
		return -1
	}

	draw := u() * total
	cumulative := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		if cumulative > draw {
			return i
		}
	}
	return last
}

// CryptoSeed returns a seed from crypto/rand, for runs configured without one.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; fall back to a fixed seed so the run stays reproducible.
		slog.Warn("crypto/rand unavailable, using fixed seed", "error", err)
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}
