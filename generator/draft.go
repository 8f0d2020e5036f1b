package generator

import (
	"math"
	"sort"

	"github.com/cellfuzz/txpoolfuzz/types"
)

// saltSize is the length of the salt appended to generated script args.
const saltSize = 8

// draft is a transaction under construction together with the cells its
// inputs resolve to, in input order.
type draft struct {
	tx        *types.Transaction
	inputs    []spendable
	conflicts []int
	fee       uint64
}

func (d *draft) addInput(in spendable, since uint64) {
	d.tx.Inputs = append(d.tx.Inputs, types.CellInput{Previous: in.ref, Since: since})
	d.inputs = append(d.inputs, in)
}

// insertInput places in at position i and gives it a witness, shifting the
// inputs and witnesses after it.
func (d *draft) insertInput(i int, in types.CellInput, cell spendable, witness []byte) {
	d.tx.Inputs = append(d.tx.Inputs[:i], append([]types.CellInput{in}, d.tx.Inputs[i:]...)...)
	d.inputs = append(d.inputs[:i], append([]spendable{cell}, d.inputs[i:]...)...)
	if i <= len(d.tx.Witnesses) {
		d.tx.Witnesses = append(d.tx.Witnesses[:i], append([][]byte{witness}, d.tx.Witnesses[i:]...)...)
	}
}

// inputCapacity sums the capacity of the resolvable inputs.
func (d *draft) inputCapacity() (uint64, error) {
	caps := make([]uint64, 0, len(d.inputs))
	for _, in := range d.inputs {
		if !in.foreign {
			caps = append(caps, in.output.Capacity)
		}
	}
	return types.SumCapacity(caps...)
}

// parents returns the sorted batch indices of the candidates whose outputs
// the draft spends.
func (d *draft) parents() []int {
	var out []int
	seen := make(map[int]struct{})
	for _, in := range d.inputs {
		if in.foreign || !in.pending() {
			continue
		}
		if _, ok := seen[in.parent]; !ok {
			seen[in.parent] = struct{}{}
			out = append(out, in.parent)
		}
	}
	sort.Ints(out)
	return out
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// draftSpend samples inputs and synthesizes outputs, scripts and witnesses.
// Output capacities are left for balance.
func (g *Batch) draftSpend() (*draft, error) {
	k := g.m.Count(g.plan.Inputs.Min, g.plan.Inputs.Max, g.plan.Inputs.Mean)
	cells := g.ov.sample(g.m, k, g.plan.SizeBiased)
	if len(cells) == 0 {
		return nil, ErrNoLiveCells
	}

	d := &draft{tx: &types.Transaction{CellDeps: []types.CellDep{g.cs.Anchor.Dep}}}
	for _, c := range cells {
		var since uint64
		if g.m.Chance(g.plan.SinceRate) {
			since = g.satisfiedSince(c)
		}
		d.addInput(c, since)
		d.tx.Witnesses = append(d.tx.Witnesses, g.witness())
	}
	if g.m.Chance(g.plan.HeaderDepRate) {
		h, _ := g.cs.HeaderAt(g.m.Uint64n(uint64(g.cs.HeaderCount())))
		d.tx.HeaderDeps = append(d.tx.HeaderDeps, h.Hash)
	}
	n := g.m.Count(g.plan.Outputs.Min, g.plan.Outputs.Max, g.plan.Outputs.Mean)
	for i := 0; i < n; i++ {
		d.tx.Outputs = append(d.tx.Outputs, g.output())
	}
	return d, nil
}

// fee draws the fee of a balanced transaction. Underspending transactions
// leave an extra fee on top.
func (g *Batch) fee() uint64 {
	fee := g.m.Uint64Range(g.plan.Fee.Min, g.plan.Fee.Max)
	if g.m.Chance(g.plan.UnderspendRate) {
		fee = satAdd(fee, g.m.Uint64Range(1, max(g.plan.Fee.Max, 1)))
	}
	return fee
}

// balance sets the output capacities so that the outputs carry the input
// capacity minus the fee. Every output gets at least its occupied capacity
// and the fee is clamped to what the inputs can pay, but never below the
// minimum the transaction's size demands.
func (g *Batch) balance(d *draft, fee uint64) error {
	inCap, err := d.inputCapacity()
	if err != nil {
		return err
	}
	// capacities only shrink from here, so this size bounds the final one
	for i := range d.tx.Outputs {
		d.tx.Outputs[i].Capacity = inCap
	}
	minFee := g.cs.Params.MinFee(d.tx.Size())

	occupied := make([]uint64, len(d.tx.Outputs))
	var need uint64
	for i, out := range d.tx.Outputs {
		if occupied[i], err = out.OccupiedCapacity(g.cs.Params.ByteCapacity); err != nil {
			return err
		}
		if need, err = types.SumCapacity(need, occupied[i]); err != nil {
			return err
		}
	}
	if need > inCap || inCap-need < minFee {
		return ErrInputsTooSmall
	}
	fee = max(min(fee, inCap-need), minFee)

	spare := inCap - need - fee
	n := len(d.tx.Outputs)
	for i := range d.tx.Outputs {
		share := spare
		if i < n-1 {
			share = g.m.Uint64Range(0, spare/uint64(n-i))
		}
		d.tx.Outputs[i].Capacity = occupied[i] + share
		spare -= share
	}
	d.fee = fee
	return nil
}

func (g *Batch) output() types.CellOutput {
	out := types.CellOutput{Lock: g.script(0, g.cycles())}
	if g.m.Chance(g.plan.TypeScriptRate) {
		typ := g.script(0, g.cycles())
		out.Type = &typ
	}
	if n := g.m.Intn(g.plan.MaxDataSize + 1); n > 0 {
		out.Data = g.m.Bytes(n)
	}
	return out
}

// script returns a script running the anchor code, referenced by data or by
// type hash.
func (g *Batch) script(result, cycles uint64) types.Script {
	s := types.Script{CodeHash: g.cs.Anchor.TypeHash, HashType: types.HashTypeType}
	if g.m.Chance(g.plan.DataHashRate) {
		s.CodeHash, s.HashType = g.cs.Anchor.DataHash, types.HashTypeData
	}
	s.Args = types.MockScriptArgs(result, cycles, g.m.Bytes(saltSize))
	return s
}

func (g *Batch) cycles() uint64 {
	return g.m.Uint64Range(g.plan.Cycles.Min, g.plan.Cycles.Max)
}

func (g *Batch) witness() []byte {
	return types.FrameWitness(g.m.Bytes(g.m.Intn(g.plan.MaxWitnessSize + 1)))
}

//------------------------------------------------------------------------------
// since

// satisfiedSince returns a since the tip already satisfies for cell, or 0.
func (g *Batch) satisfiedSince(c spendable) uint64 {
	tip := g.cs.Tip()
	var s types.Since
	switch g.m.Intn(5) {
	case 0:
		s = types.Since{Metric: types.SinceBlockNumber, Value: tip.Height}
	case 1:
		s = types.Since{Metric: types.SinceEpoch, Value: tip.Epoch}
	case 2:
		s = types.Since{Metric: types.SinceTimestamp, Value: tip.Timestamp / 1000}
	case 3, 4:
		if c.pending() || c.createdAt > tip.Height {
			return 0
		}
		created, ok := g.cs.HeaderAt(c.createdAt)
		if !ok {
			return 0
		}
		s = types.Since{Relative: true, Metric: types.SinceBlockNumber, Value: tip.Height - created.Height}
		if g.m.Intn(2) == 1 {
			s = types.Since{Relative: true, Metric: types.SinceTimestamp, Value: (tip.Timestamp - created.Timestamp) / 1000}
		}
	}
	if s.Value == 0 {
		return 0
	}
	s.Value = g.m.Uint64Range(1, s.Value)
	return s.Encode()
}

// unsatisfiedSince returns a since the tip does not satisfy for cell.
func (g *Batch) unsatisfiedSince(c spendable) uint64 {
	tip := g.cs.Tip()
	ahead := 1 + g.m.Uint64n(16)
	var s types.Since
	switch g.m.Intn(4) {
	case 0:
		s = types.Since{Metric: types.SinceBlockNumber, Value: tip.Height + ahead}
	case 1:
		s = types.Since{Metric: types.SinceEpoch, Value: tip.Epoch + ahead}
	case 2:
		s = types.Since{Metric: types.SinceTimestamp, Value: tip.Timestamp/1000 + ahead*60}
	case 3:
		s = types.Since{Relative: true, Metric: types.SinceBlockNumber, Value: ahead}
		if !c.pending() {
			if created, ok := g.cs.HeaderAt(c.createdAt); ok {
				s.Value += tip.Height - created.Height
			}
		}
	}
	return s.Encode()
}

//------------------------------------------------------------------------------
// prediction

// predict returns the reason the engine rejects d for, ReasonNone if it
// should be accepted. It assumes d resolves and pays its fee, and mirrors
// the engine's script grouping: one run per distinct lock among the inputs
// and per distinct type among inputs and outputs.
func (g *Batch) predict(d *draft) types.RejectReason {
	if uint64(d.tx.Size()) > g.cs.Params.MaxTxBytes {
		return types.ReasonOversized
	}

	var (
		total   uint64
		failed  bool
		locks   = make(map[types.Hash]struct{})
		typeSet = make(map[types.Hash]struct{})
	)
	run := func(groups map[types.Hash]struct{}, s types.Script) {
		h := s.Hash()
		if _, ok := groups[h]; ok {
			return
		}
		groups[h] = struct{}{}
		cycles, ok := g.runs(s)
		if !ok {
			failed = true
		}
		total = satAdd(total, cycles)
	}
	for _, in := range d.inputs {
		if !in.foreign {
			run(locks, in.output.Lock)
		}
	}
	for _, in := range d.inputs {
		if !in.foreign && in.output.Type != nil {
			run(typeSet, *in.output.Type)
		}
	}
	for _, out := range d.tx.Outputs {
		if out.Type != nil {
			run(typeSet, *out.Type)
		}
	}

	switch {
	case failed:
		return types.ReasonScript
	case total > g.cs.Params.MaxTxCycles:
		return types.ReasonCycleLimit
	}
	return types.ReasonNone
}

// runs reports whether s executes successfully against the anchor and the
// cycles it declares.
func (g *Batch) runs(s types.Script) (uint64, bool) {
	switch {
	case s.HashType == types.HashTypeData && s.CodeHash == g.cs.Anchor.DataHash:
	case s.HashType == types.HashTypeType && s.CodeHash == g.cs.Anchor.TypeHash:
	default:
		return 0, false
	}
	result, cycles, err := types.ParseMockScriptArgs(s.Args)
	if err != nil || result != 0 {
		return 0, false
	}
	return cycles, true
}

// witnessesValid reports whether the first input of every lock group has a
// well framed witness.
func witnessesValid(tx *types.Transaction, inputs []spendable) bool {
	seen := make(map[types.Hash]struct{})
	for i, in := range inputs {
		if in.foreign {
			continue
		}
		h := in.output.Lock.Hash()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if i >= len(tx.Witnesses) {
			return false
		}
		if _, err := types.UnframeWitness(tx.Witnesses[i]); err != nil {
			return false
		}
	}
	return true
}
