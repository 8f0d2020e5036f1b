package seed

import (
	"golang.org/x/exp/rand"
)

// countingSource is a PCG source that counts its draws. The count is the
// position in the stream and is persisted alongside the generator state.
type countingSource struct {
	pcg   *rand.PCGSource
	draws uint64
}

var _ rand.Source = (*countingSource)(nil)

func newCountingSource(seed uint64) *countingSource {
	src := &countingSource{pcg: &rand.PCGSource{}}
	src.Seed(seed)
	return src
}

func (s *countingSource) Uint64() uint64 {
	s.draws++
	return s.pcg.Uint64()
}

func (s *countingSource) Seed(seed uint64) {
	s.pcg.Seed(seed)
	s.draws = 0
}
