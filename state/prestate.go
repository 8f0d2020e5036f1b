package state

import (
	"github.com/cellfuzz/txpoolfuzz/types"
)

// InputStatus is the standing of an input reference before submission.
type InputStatus uint8

const (
	InputLive InputStatus = iota
	InputDead
	InputUnknown
)

func (s InputStatus) String() string {
	switch s {
	case InputLive:
		return "live"
	case InputDead:
		return "dead"
	}
	return "unknown"
}

// InputState is one input as the state saw it before submission.
type InputState struct {
	Ref      types.CellReference
	Status   InputStatus
	Capacity uint64
}

// Prestate captures, in time proportional to the transaction, what an
// invariant check needs to know about the state before a submission.
type Prestate struct {
	Version   uint64
	Height    uint64
	LiveCount int
	Inputs    []InputState
}

// Capture records the standing of tx's inputs in s.
func (s *ChainState) Capture(tx *types.Transaction) *Prestate {
	p := &Prestate{
		Version:   s.Version,
		Height:    s.Height(),
		LiveCount: s.LiveCount(),
		Inputs:    make([]InputState, len(tx.Inputs)),
	}
	for i, in := range tx.Inputs {
		st := InputState{Ref: in.Previous, Status: InputUnknown}
		if cell, ok := s.LiveCell(in.Previous); ok {
			st.Status = InputLive
			st.Capacity = cell.Output.Capacity
		} else if _, ok := s.DeadCell(in.Previous); ok {
			st.Status = InputDead
		}
		p.Inputs[i] = st
	}
	return p
}

// InputCapacity sums the capacity of inputs that were live. It reports
// false if any input was not live.
func (p *Prestate) InputCapacity() (uint64, bool, error) {
	caps := make([]uint64, 0, len(p.Inputs))
	for _, in := range p.Inputs {
		if in.Status != InputLive {
			return 0, false, nil
		}
		caps = append(caps, in.Capacity)
	}
	total, err := types.SumCapacity(caps...)
	return total, true, err
}
