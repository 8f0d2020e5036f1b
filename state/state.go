// Package state models the mock chain the fuzzer runs against: the sealed
// headers, the live-cell set, the recently consumed cells and the consensus
// parameters.
//
// The live set keeps an explicit insertion order next to its index so that
// every traversal, and therefore every random choice made from it, is
// reproducible. The order is persisted with the state.
package state

import (
	"github.com/cellfuzz/txpoolfuzz/types"
)

// DefaultMaxDeadCells bounds the consumed-cell history. The oldest entries
// are forgotten first.
const DefaultMaxDeadCells = 100_000

// LiveCell is an unspent output.
type LiveCell struct {
	Output types.CellOutput
	// Height of the block that created the cell. Cells created by pending
	// transactions carry the height of the next block.
	CreatedAt uint64
}

// DeadCell records who consumed a cell.
type DeadCell struct {
	ConsumedBy types.Hash
	Height     uint64
}

// ScriptAnchor is the genesis code cell every generated script points to. It
// is a system cell: readable as a cell dep, never part of the live set and
// never spendable.
type ScriptAnchor struct {
	Dep      types.CellDep
	Output   types.CellOutput
	DataHash types.Hash
	TypeHash types.Hash
}

type liveEntry struct {
	cell LiveCell
	pos  int
}

// ChainState is the harness's model of the chain. The store is its only
// writer; everyone else works on a read-only view between mutations.
type ChainState struct {
	Params types.ConsensusParams
	Anchor ScriptAnchor

	// Version increases with every mutation. Outcomes record the version
	// they were evaluated against.
	Version uint64

	headers     []types.Header
	headerIndex map[types.Hash]uint64

	live      map[types.CellReference]*liveEntry
	liveOrder []types.CellReference

	dead      map[types.CellReference]DeadCell
	deadOrder []types.CellReference
	deadHead  int
	maxDead   int

	pending []types.Hash
}

func newChainState(params types.ConsensusParams, anchor ScriptAnchor) *ChainState {
	return &ChainState{
		Params:      params,
		Anchor:      anchor,
		headerIndex: make(map[types.Hash]uint64),
		live:        make(map[types.CellReference]*liveEntry),
		dead:        make(map[types.CellReference]DeadCell),
		maxDead:     DefaultMaxDeadCells,
	}
}

// SetMaxDeadCells changes the bound of the consumed-cell history, evicting
// the oldest entries if needed.
func (s *ChainState) SetMaxDeadCells(n int) {
	s.maxDead = n
	s.evictDead()
}

//------------------------------------------------------------------------------
// headers

// Tip returns the latest sealed header.
func (s *ChainState) Tip() types.Header {
	return s.headers[len(s.headers)-1]
}

// Height returns the height of the latest sealed header.
func (s *ChainState) Height() uint64 {
	return s.Tip().Height
}

// HeaderCount returns the number of sealed headers, genesis included.
func (s *ChainState) HeaderCount() int {
	return len(s.headers)
}

// HeaderAt returns the header at height.
func (s *ChainState) HeaderAt(height uint64) (types.Header, bool) {
	if height >= uint64(len(s.headers)) {
		return types.Header{}, false
	}
	return s.headers[height], true
}

// HeaderByHash looks a header up by hash.
func (s *ChainState) HeaderByHash(h types.Hash) (types.Header, bool) {
	height, ok := s.headerIndex[h]
	if !ok {
		return types.Header{}, false
	}
	return s.headers[height], true
}

// PendingTxs returns the hashes applied since the last sealed block.
func (s *ChainState) PendingTxs() []types.Hash {
	return append([]types.Hash(nil), s.pending...)
}

//------------------------------------------------------------------------------
// live set

// LiveCount returns the number of live cells.
func (s *ChainState) LiveCount() int {
	return len(s.liveOrder)
}

// IsLive reports whether ref is unspent.
func (s *ChainState) IsLive(ref types.CellReference) bool {
	_, ok := s.live[ref]
	return ok
}

// LiveCell returns the live cell at ref.
func (s *ChainState) LiveCell(ref types.CellReference) (LiveCell, bool) {
	e, ok := s.live[ref]
	if !ok {
		return LiveCell{}, false
	}
	return e.cell, true
}

// LiveAt returns the i-th live cell in iteration order.
func (s *ChainState) LiveAt(i int) (types.CellReference, LiveCell) {
	ref := s.liveOrder[i]
	return ref, s.live[ref].cell
}

// IterateLive calls fn for every live cell in iteration order until fn
// returns false.
func (s *ChainState) IterateLive(fn func(types.CellReference, LiveCell) bool) {
	for _, ref := range s.liveOrder {
		if !fn(ref, s.live[ref].cell) {
			return
		}
	}
}

// TotalCapacity sums the capacity of all live cells.
func (s *ChainState) TotalCapacity() (uint64, error) {
	var total uint64
	for _, ref := range s.liveOrder {
		t, err := types.SumCapacity(total, s.live[ref].cell.Output.Capacity)
		if err != nil {
			return 0, err
		}
		total = t
	}
	return total, nil
}

func (s *ChainState) addLive(ref types.CellReference, cell LiveCell) {
	s.live[ref] = &liveEntry{cell: cell, pos: len(s.liveOrder)}
	s.liveOrder = append(s.liveOrder, ref)
}

// removeLive swaps the last entry into the removed slot.
func (s *ChainState) removeLive(ref types.CellReference) LiveCell {
	e := s.live[ref]
	last := len(s.liveOrder) - 1
	moved := s.liveOrder[last]
	s.liveOrder[e.pos] = moved
	s.live[moved].pos = e.pos
	s.liveOrder = s.liveOrder[:last]
	delete(s.live, ref)
	return e.cell
}

//------------------------------------------------------------------------------
// dead set

// DeadCount returns the number of remembered consumed cells.
func (s *ChainState) DeadCount() int {
	return len(s.deadOrder) - s.deadHead
}

// DeadCell returns who consumed ref, if it is still remembered.
func (s *ChainState) DeadCell(ref types.CellReference) (DeadCell, bool) {
	d, ok := s.dead[ref]
	return d, ok
}

// DeadAt returns the i-th remembered consumed cell, oldest first.
func (s *ChainState) DeadAt(i int) (types.CellReference, DeadCell) {
	ref := s.deadOrder[s.deadHead+i]
	return ref, s.dead[ref]
}

func (s *ChainState) addDead(ref types.CellReference, d DeadCell) {
	s.dead[ref] = d
	s.deadOrder = append(s.deadOrder, ref)
	s.evictDead()
}

func (s *ChainState) evictDead() {
	for s.DeadCount() > s.maxDead {
		delete(s.dead, s.deadOrder[s.deadHead])
		s.deadHead++
	}
	// compact once the evicted prefix dominates
	if s.deadHead > 0 && s.deadHead*2 >= len(s.deadOrder) {
		s.deadOrder = append([]types.CellReference(nil), s.deadOrder[s.deadHead:]...)
		s.deadHead = 0
	}
}

//------------------------------------------------------------------------------

// Copy returns a deep copy that shares nothing mutable with s.
func (s *ChainState) Copy() *ChainState {
	cp := newChainState(s.Params, s.Anchor)
	cp.Version = s.Version
	cp.maxDead = s.maxDead
	cp.headers = append([]types.Header(nil), s.headers...)
	for h, height := range s.headerIndex {
		cp.headerIndex[h] = height
	}
	for _, ref := range s.liveOrder {
		cp.addLive(ref, s.live[ref].cell)
	}
	for i := 0; i < s.DeadCount(); i++ {
		ref, d := s.DeadAt(i)
		cp.dead[ref] = d
		cp.deadOrder = append(cp.deadOrder, ref)
	}
	cp.pending = append([]types.Hash(nil), s.pending...)
	return cp
}

// CheckConsistency verifies the internal bookkeeping: the live index and
// order agree, no cell is both live and dead, the header chain links up and
// pending hashes are unique.
func (s *ChainState) CheckConsistency() error {
	if len(s.headers) == 0 {
		return ErrNoHeaders
	}
	if len(s.live) != len(s.liveOrder) {
		return ErrInconsistent{Detail: "live index and order differ in length"}
	}
	for i, ref := range s.liveOrder {
		e, ok := s.live[ref]
		if !ok || e.pos != i {
			return ErrInconsistent{Detail: "live order entry " + ref.String() + " is not indexed at its position"}
		}
		if _, ok := s.dead[ref]; ok {
			return ErrInconsistent{Detail: "cell " + ref.String() + " is both live and consumed"}
		}
	}
	if len(s.dead) != s.DeadCount() {
		return ErrInconsistent{Detail: "dead index and order differ in length"}
	}
	for i, h := range s.headers {
		if h.Height != uint64(i) {
			return ErrInconsistent{Detail: "header heights are not contiguous"}
		}
		if h.ComputeHash() != h.Hash {
			return ErrInconsistent{Detail: "header hash mismatch at " + h.String()}
		}
		if i > 0 && h.ParentHash != s.headers[i-1].Hash {
			return ErrInconsistent{Detail: "broken parent link at " + h.String()}
		}
	}
	seen := make(map[types.Hash]struct{}, len(s.pending))
	for _, h := range s.pending {
		if _, ok := seen[h]; ok {
			return ErrInconsistent{Detail: "pending tx " + h.String() + " applied twice"}
		}
		seen[h] = struct{}{}
	}
	return nil
}
