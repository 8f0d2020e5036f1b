// Package seed holds the deterministic randomness of a fuzz run: one seeded
// stream that every random decision draws from, and the virtual clock.
//
// Given the same seed and the same sequence of calls, a Model returns the
// same values. Nothing in this package reads the wall clock or an ambient
// random source.
package seed

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cellfuzz/txpoolfuzz/types"
	tpftime "github.com/cellfuzz/txpoolfuzz/types/time"
)

const (
	// maxResample bounds rejection sampling loops.
	maxResample = 1024

	pcgStateSize = 16
)

var ErrEmptyRange = errors.New("empty range")

// Model is the seed model. It is not safe for concurrent use; the driver is
// its only user.
type Model struct {
	seed  uint64
	src   *countingSource
	rng   *rand.Rand
	clock *tpftime.VirtualClock
}

// New returns a model seeded with seed and a virtual clock starting at
// clockStart milliseconds.
func New(seed uint64, clockStart uint64) *Model {
	src := newCountingSource(seed)
	return &Model{
		seed:  seed,
		src:   src,
		rng:   rand.New(src),
		clock: tpftime.NewVirtualClock(clockStart),
	}
}

// Restore rebuilds a model at the exact stream position recorded in st.
func Restore(st types.SeedState) (*Model, error) {
	if len(st.Source) != pcgStateSize {
		return nil, fmt.Errorf("restoring seed source: want %d state bytes, got %d", pcgStateSize, len(st.Source))
	}
	m := New(st.Seed, st.Clock)
	if err := m.src.pcg.UnmarshalBinary(st.Source); err != nil {
		return nil, fmt.Errorf("restoring seed source: %w", err)
	}
	m.src.draws = st.Draws
	return m, nil
}

// State captures the stream position and clock.
func (m *Model) State() types.SeedState {
	raw, err := m.src.pcg.MarshalBinary()
	if err != nil {
		// PCGSource.MarshalBinary never fails.
		panic(err)
	}
	return types.SeedState{
		Seed:   m.seed,
		Source: raw,
		Draws:  m.src.draws,
		Clock:  m.clock.UnixMilli(),
	}
}

// Seed returns the initial seed.
func (m *Model) Seed() uint64 { return m.seed }

// Draws returns the number of 64-bit values drawn so far.
func (m *Model) Draws() uint64 { return m.src.draws }

func (m *Model) Uint64() uint64 { return m.rng.Uint64() }

// Uint64n returns a value in [0, n). It panics if n == 0.
func (m *Model) Uint64n(n uint64) uint64 { return m.rng.Uint64n(n) }

// Intn returns a value in [0, n). It panics if n <= 0.
func (m *Model) Intn(n int) int { return m.rng.Intn(n) }

// Uint64Range returns a value in [lo, hi].
func (m *Model) Uint64Range(lo, hi uint64) uint64 {
	if hi < lo {
		lo, hi = hi, lo
	}
	if lo == 0 && hi == math.MaxUint64 {
		return m.rng.Uint64()
	}
	return lo + m.rng.Uint64n(hi-lo+1)
}

func (m *Model) Float64() float64 { return m.rng.Float64() }

// Chance returns true with probability p. It always consumes one draw.
func (m *Model) Chance(p float64) bool {
	return m.rng.Float64() < p
}

// Bytes returns n random bytes. Bytes are cut from whole 64-bit draws so the
// stream position never depends on buffered leftovers.
func (m *Model) Bytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	for i := 0; i < n; i += 8 {
		v := m.rng.Uint64()
		for j := 0; j < 8 && i+j < n; j++ {
			out[i+j] = byte(v >> (8 * j))
		}
	}
	return out
}

// Hash returns a random hash. It is used for references that must not
// resolve to anything on chain.
func (m *Model) Hash() types.Hash {
	var h types.Hash
	copy(h[:], m.Bytes(types.HashSize))
	return h
}

// Normal draws from N(mu, sigma).
func (m *Model) Normal(mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: m.src}.Rand()
}

// Poisson draws from Poisson(lambda). lambda must be positive.
func (m *Model) Poisson(lambda float64) uint64 {
	return uint64(distuv.Poisson{Lambda: lambda, Src: m.src}.Rand())
}

// Count draws a Poisson-distributed count shifted to lie in [lo, hi]. mean
// is the expected value before clamping.
func (m *Model) Count(lo, hi int, mean float64) int {
	if hi <= lo {
		return lo
	}
	extra := mean - float64(lo)
	if extra <= 0 {
		return lo
	}
	n := lo + int(m.Poisson(extra))
	if n > hi {
		n = hi
	}
	return n
}

// SampleDistinct returns k distinct indices in [0, n) in draw order.
func (m *Model) SampleDistinct(n, k int) ([]int, error) {
	if k > n {
		return nil, fmt.Errorf("%w: cannot pick %d of %d", ErrEmptyRange, k, n)
	}
	if k*2 > n {
		perm := m.rng.Perm(n)
		return perm[:k], nil
	}
	seen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for len(out) < k {
		i := m.rng.Intn(n)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out, nil
}

// BlockInterval draws the virtual time between two blocks: a normal
// distribution around mean with a standard deviation of mean/4, resampled
// until positive and rounded up to whole milliseconds.
func (m *Model) BlockInterval(mean time.Duration) time.Duration {
	mu := float64(mean.Milliseconds())
	if mu <= 0 {
		return time.Millisecond
	}
	for i := 0; i < maxResample; i++ {
		if v := m.Normal(mu, mu/4); v > 0 {
			return time.Duration(math.Ceil(v)) * time.Millisecond
		}
	}
	return mean
}

// Clock returns the virtual clock.
func (m *Model) Clock() tpftime.Source { return m.clock }

// Now returns the virtual time in milliseconds.
func (m *Model) Now() uint64 { return m.clock.UnixMilli() }

// AdvanceClock moves the virtual clock forward by d.
func (m *Model) AdvanceClock(d time.Duration) error {
	return m.clock.Advance(d)
}
