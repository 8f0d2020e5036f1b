package generator

import (
	"math"

	"github.com/cellfuzz/txpoolfuzz/types"
)

func (g *Batch) validSpend() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	return g.finish(StrategyValidSpend, d), nil
}

// doubleSpend reuses an input an earlier candidate of the batch consumes, or
// one consumed on chain. Without either it degrades to unknownInput.
func (g *Batch) doubleSpend() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}

	reasons := []types.RejectReason{types.ReasonDoubleSpend}
	ref, spender, inBatch := g.ov.spentRef(g.m)
	if dead := g.cs.DeadCount(); dead > 0 && (!inBatch || g.m.Chance(0.5)) {
		ref, _ = g.cs.DeadAt(g.m.Intn(dead))
		// the engine may have forgotten old spends
		reasons = append(reasons, types.ReasonUnknownInput)
	} else if inBatch {
		d.conflicts = []int{spender}
	} else {
		return g.unknownInputFrom(d)
	}

	g.insertForeign(d, ref)
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	return g.finish(StrategyDoubleSpend, d, reasons...), nil
}

func (g *Batch) unknownInput() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	return g.unknownInputFrom(d)
}

func (g *Batch) unknownInputFrom(d *draft) (*Candidate, error) {
	g.insertForeign(d, types.CellReference{TxHash: g.m.Hash(), Index: uint32(g.m.Intn(4))})
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	return g.finish(StrategyUnknownInput, d, types.ReasonUnknownInput), nil
}

// insertForeign adds an input that does not resolve to a cell of the view at
// a random position.
func (g *Batch) insertForeign(d *draft, ref types.CellReference) {
	i := g.m.Intn(len(d.tx.Inputs) + 1)
	d.insertInput(i, types.CellInput{Previous: ref}, spendable{ref: ref, parent: -1, foreign: true}, g.witness())
}

// unknownDependency adds a cell dep or header dep that does not resolve: a
// made-up cell, a consumed cell or a made-up header.
func (g *Batch) unknownDependency() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	switch g.m.Intn(3) {
	case 0:
		if dead := g.cs.DeadCount(); dead > 0 {
			ref, _ := g.cs.DeadAt(g.m.Intn(dead))
			d.tx.CellDeps = append(d.tx.CellDeps, types.CellDep{OutPoint: ref, DepType: types.DepTypeCode})
			break
		}
		fallthrough
	case 1:
		ref := types.CellReference{TxHash: g.m.Hash(), Index: uint32(g.m.Intn(4))}
		d.tx.CellDeps = append(d.tx.CellDeps, types.CellDep{OutPoint: ref, DepType: types.DepTypeCode})
	case 2:
		d.tx.HeaderDeps = append(d.tx.HeaderDeps, g.m.Hash())
	}
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	return g.finish(StrategyUnknownDependency, d, types.ReasonUnknownDependency), nil
}

// overspend lets the outputs carry more than the inputs, occasionally enough
// to overflow the capacity sum.
func (g *Batch) overspend() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	inCap, err := d.inputCapacity()
	if err != nil {
		return nil, err
	}

	if g.m.Intn(4) == 0 {
		out := g.output()
		out.Capacity = math.MaxUint64 - g.m.Uint64n(1024)
		d.tx.Outputs = append(d.tx.Outputs, out)
	} else {
		i := g.m.Intn(len(d.tx.Outputs))
		extra := satAdd(d.fee, 1+g.m.Uint64n(max(inCap, 1)))
		d.tx.Outputs[i].Capacity = satAdd(d.tx.Outputs[i].Capacity, extra)
	}

	reason := types.ReasonInsufficientCapacity
	if _, err := d.tx.OutputCapacity(); err != nil {
		reason = types.ReasonCapacityOverflow
	}
	return g.finish(StrategyOverspend, d, reason), nil
}

// oversizedWitness appends a witness that alone exceeds max_tx_bytes.
func (g *Batch) oversizedWitness() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	size := int(g.cs.Params.MaxTxBytes) + 1 + g.m.Intn(256)
	w := make([]byte, size)
	copy(w, g.m.Bytes(32))
	d.tx.Witnesses = append(d.tx.Witnesses, types.FrameWitness(w))
	return g.finish(StrategyOversizedWitness, d, types.ReasonOversized), nil
}

// invalidScriptArgs gives one output a type script that cannot succeed:
// args too short for the mock VM, a non-zero exit code, or code that no
// dep provides.
func (g *Batch) invalidScriptArgs() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	bad := g.script(0, g.cycles())
	switch g.m.Intn(3) {
	case 0:
		bad.Args = g.m.Bytes(g.m.Intn(types.MockArgsSize))
	case 1:
		bad.Args = types.MockScriptArgs(1+g.m.Uint64n(255), g.cycles(), g.m.Bytes(saltSize))
	case 2:
		bad.CodeHash = g.m.Hash()
	}
	d.tx.Outputs[g.m.Intn(len(d.tx.Outputs))].Type = &bad
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	return g.finish(StrategyInvalidScriptArgs, d, types.ReasonScript), nil
}

// cycleExhaustion declares more cycles than max_tx_cycles, in one type
// script or split across two.
func (g *Batch) cycleExhaustion() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	limit := g.cs.Params.MaxTxCycles
	outs := d.tx.Outputs
	if len(outs) >= 2 && g.m.Chance(0.5) {
		i, j := 0, 1+g.m.Intn(len(outs)-1)
		half := limit/2 + 1
		a, b := g.script(0, half), g.script(0, half)
		outs[i].Type, outs[j].Type = &a, &b
	} else {
		s := g.script(0, g.m.Uint64Range(satAdd(limit, 1), satAdd(limit, limit)))
		outs[g.m.Intn(len(outs))].Type = &s
	}
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	return g.finish(StrategyCycleExhaustion, d, types.ReasonCycleLimit), nil
}

// duplicateInput lists one input twice.
func (g *Batch) duplicateInput() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	src := g.m.Intn(len(d.tx.Inputs))
	in, cell := d.tx.Inputs[src], d.inputs[src]
	cell.foreign = true
	d.insertInput(g.m.Intn(len(d.tx.Inputs)+1), in, cell, g.witness())
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	return g.finish(StrategyDuplicateInput, d, types.ReasonMalformed), nil
}

// immatureSince puts a since constraint the tip does not satisfy on one
// input.
func (g *Batch) immatureSince() (*Candidate, error) {
	d, err := g.draftSpend()
	if err != nil {
		return nil, err
	}
	i := g.m.Intn(len(d.tx.Inputs))
	d.tx.Inputs[i].Since = g.unsatisfiedSince(d.inputs[i])
	if err := g.balance(d, g.fee()); err != nil {
		return nil, err
	}
	return g.finish(StrategyImmatureSince, d, types.ReasonImmature), nil
}

// cellCreation mints outputs without consuming anything.
func (g *Batch) cellCreation() (*Candidate, error) {
	d := &draft{tx: &types.Transaction{CellDeps: []types.CellDep{g.cs.Anchor.Dep}}}
	n := g.m.Count(g.plan.Outputs.Min, g.plan.Outputs.Max, g.plan.Outputs.Mean)
	for i := 0; i < n; i++ {
		out := g.output()
		out.Capacity = g.m.Uint64Range(1, max(g.plan.Fee.Max, 1))
		d.tx.Outputs = append(d.tx.Outputs, out)
	}
	return g.finish(StrategyCellCreation, d, types.ReasonMalformed), nil
}
