package mempool

import (
	"context"

	"github.com/cellfuzz/txpoolfuzz/types"
)

// resolvedInput is an input together with the cell it consumes.
type resolvedInput struct {
	ref   types.CellReference
	since types.Since
	cell  *poolCell
}

// verify runs every check on tx and returns it ready for admission. Callers
// hold p.mtx.
func (p *TxPool) verify(ctx context.Context, tx *types.Transaction, hash types.Hash) (*poolTx, error) {
	if _, ok := p.pendingTx[hash]; ok {
		return nil, reject(types.ReasonDuplicate, "tx %v is already pending", hash)
	}
	if p.known.Has(hash) {
		return nil, reject(types.ReasonDuplicate, "tx %v is already committed", hash)
	}

	sinces, err := checkSanity(tx)
	if err != nil {
		return nil, err
	}

	size := tx.Size()
	if uint64(size) > p.params.MaxTxBytes {
		return nil, reject(types.ReasonOversized, "tx size is too big: %d, max: %d", size, p.params.MaxTxBytes)
	}

	seen := make(map[types.CellReference]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, dup := seen[in.Previous]; dup {
			return nil, reject(types.ReasonMalformed, "input %v is listed twice", in.Previous)
		}
		seen[in.Previous] = struct{}{}
	}

	inputs, err := p.resolveInputs(tx, sinces)
	if err != nil {
		return nil, err
	}
	deps, err := p.resolveDeps(tx)
	if err != nil {
		return nil, err
	}

	for _, in := range inputs {
		if err := p.checkSince(in); err != nil {
			return nil, err
		}
	}

	if err := p.checkCapacity(tx, inputs, size); err != nil {
		return nil, err
	}

	if err := checkWitnesses(tx, inputs); err != nil {
		return nil, err
	}

	cycles, err := p.runScripts(ctx, tx, inputs, deps)
	if err != nil {
		return nil, err
	}

	if p.config.MaxTxs > 0 && len(p.pending) >= p.config.MaxTxs {
		return nil, reject(types.ReasonPoolFull, "mempool is full: number of txs %d (max: %d)", len(p.pending), p.config.MaxTxs)
	}

	return &poolTx{tx: tx, hash: hash, size: size, cycles: cycles}, nil
}

// checkSanity checks what can be checked without any chain context and
// returns the decoded since of each input.
func checkSanity(tx *types.Transaction) ([]types.Since, error) {
	if len(tx.Inputs) == 0 {
		return nil, reject(types.ReasonMalformed, "tx has no inputs")
	}
	if len(tx.Outputs) == 0 {
		return nil, reject(types.ReasonMalformed, "tx has no outputs")
	}
	for i, dep := range tx.CellDeps {
		if dep.DepType != types.DepTypeCode {
			return nil, reject(types.ReasonMalformed, "cell dep %d has unsupported dep type %d", i, dep.DepType)
		}
	}
	sinces := make([]types.Since, len(tx.Inputs))
	for i, in := range tx.Inputs {
		s, err := types.ParseSince(in.Since)
		if err != nil {
			return nil, &ErrRejected{Reason: types.ReasonMalformed, Err: err}
		}
		sinces[i] = s
	}
	return sinces, nil
}

func (p *TxPool) resolveInputs(tx *types.Transaction, sinces []types.Since) ([]resolvedInput, error) {
	inputs := make([]resolvedInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		ref := in.Previous
		if by, ok := p.spentBy[ref]; ok {
			return nil, reject(types.ReasonDoubleSpend, "input %v is spent by pending tx %v", ref, by)
		}
		cell, ok := p.cells[ref]
		if !ok {
			if p.dead.Contains(ref) {
				return nil, reject(types.ReasonDoubleSpend, "input %v is dead", ref)
			}
			return nil, reject(types.ReasonUnknownInput, "input %v is unknown", ref)
		}
		inputs[i] = resolvedInput{ref: ref, since: sinces[i], cell: cell}
	}
	return inputs, nil
}

// resolveDeps returns the outputs of the cell deps, in order.
func (p *TxPool) resolveDeps(tx *types.Transaction) ([]types.CellOutput, error) {
	deps := make([]types.CellOutput, len(tx.CellDeps))
	for i, dep := range tx.CellDeps {
		if out, ok := p.codeCells[dep.OutPoint]; ok {
			deps[i] = out
			continue
		}
		c, ok := p.cells[dep.OutPoint]
		if !ok {
			return nil, reject(types.ReasonUnknownDependency, "cell dep %v is not live", dep.OutPoint)
		}
		if by, spent := p.spentBy[dep.OutPoint]; spent {
			return nil, reject(types.ReasonUnknownDependency, "cell dep %v is spent by pending tx %v", dep.OutPoint, by)
		}
		deps[i] = c.output
	}
	for _, h := range tx.HeaderDeps {
		if _, ok := p.headerIdx[h]; !ok {
			return nil, reject(types.ReasonUnknownDependency, "header dep %v is unknown", h)
		}
	}
	return deps, nil
}

// checkSince checks the maturity of one input against the tip.
//
// Absolute timestamps are in seconds. Relative constraints are measured from
// the header of the block that created the cell; a cell created by a pending
// transaction has no such header and only satisfies zero constraints.
func (p *TxPool) checkSince(in resolvedInput) error {
	s := in.since
	if s.Value == 0 {
		return nil
	}
	tip := p.tip()

	if !s.Relative {
		var have uint64
		switch s.Metric {
		case types.SinceBlockNumber:
			have = tip.Height
		case types.SinceEpoch:
			have = tip.Epoch
		case types.SinceTimestamp:
			have = tip.Timestamp / 1000
		}
		if have < s.Value {
			return reject(types.ReasonImmature, "input %v: absolute %v since %d not reached (tip %d)", in.ref, s.Metric, s.Value, have)
		}
		return nil
	}

	if in.cell.createdAt > tip.Height {
		return reject(types.ReasonImmature, "input %v: relative since on a cell created by a pending tx", in.ref)
	}
	created := p.headers[in.cell.createdAt]
	var elapsed uint64
	switch s.Metric {
	case types.SinceBlockNumber:
		elapsed = tip.Height - created.Height
	case types.SinceEpoch:
		elapsed = tip.Epoch - created.Epoch
	case types.SinceTimestamp:
		elapsed = (tip.Timestamp - created.Timestamp) / 1000
	}
	if elapsed < s.Value {
		return reject(types.ReasonImmature, "input %v: relative %v since %d not reached (elapsed %d)", in.ref, s.Metric, s.Value, elapsed)
	}
	return nil
}

func (p *TxPool) checkCapacity(tx *types.Transaction, inputs []resolvedInput, size int) error {
	caps := make([]uint64, len(inputs))
	for i, in := range inputs {
		caps[i] = in.cell.output.Capacity
	}
	inCap, err := types.SumCapacity(caps...)
	if err != nil {
		return &ErrRejected{Reason: types.ReasonCapacityOverflow, Err: err}
	}
	outCap, err := tx.OutputCapacity()
	if err != nil {
		return &ErrRejected{Reason: types.ReasonCapacityOverflow, Err: err}
	}
	if outCap > inCap {
		return reject(types.ReasonInsufficientCapacity, "outputs carry %d, inputs only %d", outCap, inCap)
	}
	for i, out := range tx.Outputs {
		occupied, err := out.OccupiedCapacity(p.params.ByteCapacity)
		if err != nil {
			return &ErrRejected{Reason: types.ReasonCapacityOverflow, Err: err}
		}
		if out.Capacity < occupied {
			return reject(types.ReasonInsufficientCapacity, "output %d holds %d, occupies %d", i, out.Capacity, occupied)
		}
	}
	if fee, minFee := inCap-outCap, p.params.MinFee(size); fee < minFee {
		return reject(types.ReasonLowFee, "fee %d is below the minimum %d", fee, minFee)
	}
	return nil
}

// checkWitnesses requires the witness at the first input of every lock group
// to be well framed.
func checkWitnesses(tx *types.Transaction, inputs []resolvedInput) error {
	for _, g := range lockGroups(inputs) {
		first := g.inputs[0]
		if first >= len(tx.Witnesses) {
			return reject(types.ReasonWitness, "lock group %v has no witness at input %d", g.hash.Short(), first)
		}
		if _, err := types.UnframeWitness(tx.Witnesses[first]); err != nil {
			return reject(types.ReasonWitness, "witness %d: %v", first, err)
		}
	}
	return nil
}
