package generator

import (
	"github.com/cellfuzz/txpoolfuzz/seed"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

// spendable is a cell a candidate may consume.
type spendable struct {
	ref       types.CellReference
	output    types.CellOutput
	createdAt uint64
	// parent is the batch index of the candidate that created the cell, or
	// -1 for cells already in the chain state.
	parent int
	// foreign marks a reference that is not a cell of the view at all: a
	// dead, double-spent or made-up input of an adversarial candidate.
	foreign bool
}

func (s spendable) pending() bool { return s.parent >= 0 }

// overlay is the chain state as seen by the rest of a batch: the cells that
// earlier candidates are expected to consume are gone, the cells they create
// are spendable. The chain state itself is never touched.
type overlay struct {
	cs *state.ChainState

	spentBy    map[types.CellReference]int
	spentOrder []types.CellReference

	created []spendable
}

func newOverlay(cs *state.ChainState) *overlay {
	return &overlay{
		cs:      cs,
		spentBy: make(map[types.CellReference]int),
	}
}

// size is the number of cells in the view, spent ones included.
func (o *overlay) size() int {
	return o.cs.LiveCount() + len(o.created)
}

// available is the number of cells left to spend.
func (o *overlay) available() int {
	return o.size() - len(o.spentBy)
}

// at returns the i-th cell of the view: chain cells in live order followed
// by the cells created in the batch.
func (o *overlay) at(i int) spendable {
	if n := o.cs.LiveCount(); i >= n {
		return o.created[i-n]
	}
	ref, cell := o.cs.LiveAt(i)
	return spendable{ref: ref, output: cell.Output, createdAt: cell.CreatedAt, parent: -1}
}

func (o *overlay) isSpent(ref types.CellReference) bool {
	_, ok := o.spentBy[ref]
	return ok
}

// sample picks up to k distinct unspent cells, uniformly or with probability
// proportional to capacity.
func (o *overlay) sample(m *seed.Model, k int, sizeBiased bool) []spendable {
	if avail := o.available(); k > avail {
		k = avail
	}
	if k <= 0 {
		return nil
	}
	if sizeBiased {
		return o.sampleBiased(m, k)
	}

	picked := make(map[types.CellReference]struct{}, k)
	out := make([]spendable, 0, k)
	take := func(c spendable) {
		if o.isSpent(c.ref) {
			return
		}
		if _, dup := picked[c.ref]; dup {
			return
		}
		picked[c.ref] = struct{}{}
		out = append(out, c)
	}

	n := o.size()
	for tries := 0; len(out) < k && tries < 16*k+64; tries++ {
		take(o.at(m.Intn(n)))
	}
	// mostly spent view: finish with a scan
	for i := 0; len(out) < k && i < n; i++ {
		take(o.at(i))
	}
	return out
}

func (o *overlay) sampleBiased(m *seed.Model, k int) []spendable {
	picked := make(map[types.CellReference]struct{}, k)
	out := make([]spendable, 0, k)
	n := o.size()
	eligible := func(c spendable) bool {
		if o.isSpent(c.ref) {
			return false
		}
		_, dup := picked[c.ref]
		return !dup
	}

	for len(out) < k {
		var total float64
		for i := 0; i < n; i++ {
			if c := o.at(i); eligible(c) {
				total += float64(c.output.Capacity) + 1
			}
		}
		r := m.Float64() * total
		var chosen *spendable
		for i := 0; i < n; i++ {
			c := o.at(i)
			if !eligible(c) {
				continue
			}
			chosen = &c
			if r -= float64(c.output.Capacity) + 1; r < 0 {
				break
			}
		}
		if chosen == nil {
			break
		}
		picked[chosen.ref] = struct{}{}
		out = append(out, *chosen)
	}
	return out
}

// spentRef returns a cell an earlier candidate of the batch is expected to
// consume, and that candidate's index.
func (o *overlay) spentRef(m *seed.Model) (types.CellReference, int, bool) {
	if len(o.spentOrder) == 0 {
		return types.CellReference{}, 0, false
	}
	ref := o.spentOrder[m.Intn(len(o.spentOrder))]
	return ref, o.spentBy[ref], true
}

// record makes the effects of c visible to the rest of the batch.
func (o *overlay) record(c *Candidate) {
	for _, in := range c.inputs {
		if in.foreign {
			continue
		}
		o.spentBy[in.ref] = c.Index
		o.spentOrder = append(o.spentOrder, in.ref)
	}
	next := o.cs.Height() + 1
	for i, out := range c.Tx.Outputs {
		o.created = append(o.created, spendable{
			ref:       types.CellReference{TxHash: c.hash, Index: uint32(i)},
			output:    out,
			createdAt: next,
			parent:    c.Index,
		})
	}
}
