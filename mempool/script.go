package mempool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/bits"

	"golang.org/x/sync/errgroup"

	"github.com/cellfuzz/txpoolfuzz/types"
)

var (
	errCodeNotFound  = errors.New("script code not found in cell deps")
	errNotExecutable = errors.New("script code cell is not executable")
)

type groupKind uint8

const (
	lockGroup groupKind = iota
	typeGroup
)

func (k groupKind) String() string {
	if k == lockGroup {
		return "lock"
	}
	return "type"
}

// scriptGroup is a script together with the inputs and outputs it guards.
// A script runs once per group.
type scriptGroup struct {
	kind    groupKind
	hash    types.Hash
	script  types.Script
	inputs  []int
	outputs []int
}

// lockGroups groups inputs by lock script, in order of first occurrence.
func lockGroups(inputs []resolvedInput) []*scriptGroup {
	var groups []*scriptGroup
	index := make(map[types.Hash]*scriptGroup)
	for i, in := range inputs {
		lock := in.cell.output.Lock
		h := lock.Hash()
		g, ok := index[h]
		if !ok {
			g = &scriptGroup{kind: lockGroup, hash: h, script: lock}
			index[h] = g
			groups = append(groups, g)
		}
		g.inputs = append(g.inputs, i)
	}
	return groups
}

// typeGroups groups inputs and outputs by type script. Groups are ordered by
// first occurrence, inputs before outputs.
func typeGroups(tx *types.Transaction, inputs []resolvedInput) []*scriptGroup {
	var groups []*scriptGroup
	index := make(map[types.Hash]*scriptGroup)
	get := func(s *types.Script) *scriptGroup {
		h := s.Hash()
		g, ok := index[h]
		if !ok {
			g = &scriptGroup{kind: typeGroup, hash: h, script: *s}
			index[h] = g
			groups = append(groups, g)
		}
		return g
	}
	for i, in := range inputs {
		if t := in.cell.output.Type; t != nil {
			g := get(t)
			g.inputs = append(g.inputs, i)
		}
	}
	for i, out := range tx.Outputs {
		if out.Type != nil {
			g := get(out.Type)
			g.outputs = append(g.outputs, i)
		}
	}
	return groups
}

// codeCell is a resolved cell dep indexed by the hashes scripts may use to
// reference it.
type codeCell struct {
	dataHash types.Hash
	typeHash *types.Hash
	data     []byte
}

func indexDeps(deps []types.CellOutput) []codeCell {
	cells := make([]codeCell, len(deps))
	for i, d := range deps {
		cells[i] = codeCell{dataHash: types.Sum(d.Data), data: d.Data}
		if d.Type != nil {
			h := d.Type.Hash()
			cells[i].typeHash = &h
		}
	}
	return cells
}

// execute runs the mock VM for one group and returns the cycles consumed.
func execute(g *scriptGroup, deps []codeCell) (uint64, error) {
	var code []byte
	found := false
	for _, d := range deps {
		switch g.script.HashType {
		case types.HashTypeData:
			found = d.dataHash == g.script.CodeHash
		case types.HashTypeType:
			found = d.typeHash != nil && *d.typeHash == g.script.CodeHash
		}
		if found {
			code = d.data
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: %v by %v", errCodeNotFound, g.script.CodeHash.Short(), g.script.HashType)
	}
	if !bytes.Equal(code, types.MockVMCode) {
		return 0, errNotExecutable
	}
	result, cycles, err := types.ParseMockScriptArgs(g.script.Args)
	if err != nil {
		return 0, err
	}
	if result != 0 {
		return cycles, fmt.Errorf("script exited with code %d", result)
	}
	return cycles, nil
}

type groupResult struct {
	cycles uint64
	err    error
}

// runScripts executes every script group on a bounded number of workers.
// The reported failure is the first one in group order, lock groups before
// type groups, regardless of which worker finished first.
func (p *TxPool) runScripts(ctx context.Context, tx *types.Transaction, inputs []resolvedInput, deps []types.CellOutput) (uint64, error) {
	groups := append(lockGroups(inputs), typeGroups(tx, inputs)...)
	code := indexDeps(deps)
	results := make([]groupResult, len(groups))

	eg, egCtx := errgroup.WithContext(ctx)
	if p.config.ScriptWorkers > 0 {
		eg.SetLimit(p.config.ScriptWorkers)
	}
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			cycles, err := execute(g, code)
			results[i] = groupResult{cycles: cycles, err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	for i, r := range results {
		if r.err != nil {
			g := groups[i]
			return 0, &ErrRejected{
				Reason: types.ReasonScript,
				Err:    fmt.Errorf("%v script %v: %w", g.kind, g.hash.Short(), r.err),
			}
		}
	}

	var total uint64
	for _, r := range results {
		var carry uint64
		total, carry = bits.Add64(total, r.cycles, 0)
		if carry != 0 || total > p.params.MaxTxCycles {
			return 0, reject(types.ReasonCycleLimit, "scripts exceed max_tx_cycles %d", p.params.MaxTxCycles)
		}
	}
	return total, nil
}
