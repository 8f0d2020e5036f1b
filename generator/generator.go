// Package generator synthesizes candidate transactions from the chain state.
//
// Every random decision is drawn from the seed model, in a fixed order, so a
// plan, a chain state and a seed position always yield the same candidates.
// The chain state is only read.
package generator

import (
	"errors"

	"github.com/cellfuzz/txpoolfuzz/seed"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

// Batch generates the candidates of one block. Later candidates may spend
// the outputs of earlier ones and never reuse an input an earlier candidate
// is expected to consume.
type Batch struct {
	plan *Plan
	cs   *state.ChainState
	m    *seed.Model
	ov   *overlay

	candidates []*Candidate
}

// NewBatch starts a batch on top of cs.
func NewBatch(plan *Plan, cs *state.ChainState, m *seed.Model) *Batch {
	return &Batch{
		plan: plan,
		cs:   cs,
		m:    m,
		ov:   newOverlay(cs),
	}
}

// Generate produces a single candidate from a fresh batch.
func Generate(plan *Plan, cs *state.ChainState, m *seed.Model) (*Candidate, error) {
	return NewBatch(plan, cs, m).Next()
}

// GenerateBatch produces up to n candidates. Slots that fail to generate are
// skipped; their errors are joined into the returned error, which does not
// invalidate the returned candidates.
func GenerateBatch(plan *Plan, cs *state.ChainState, m *seed.Model, n int) ([]*Candidate, error) {
	b := NewBatch(plan, cs, m)
	var errs []error
	for i := 0; i < n; i++ {
		if _, err := b.Next(); err != nil {
			errs = append(errs, err)
		}
	}
	return b.Candidates(), errors.Join(errs...)
}

// Candidates returns the candidates generated so far.
func (g *Batch) Candidates() []*Candidate {
	return g.candidates
}

// Next chooses a strategy and generates one candidate. When nothing is left
// to spend it falls back to cell creation, unless the plan forbids it.
func (g *Batch) Next() (*Candidate, error) {
	s := g.plan.choose(g.m)
	c, err := g.build(s)
	if errors.Is(err, ErrNoLiveCells) && s != StrategyCellCreation && g.plan.AllowEmptyFallback {
		c, err = g.build(StrategyCellCreation)
	}
	if err != nil {
		return nil, ErrGeneration{Strategy: s, Err: err}
	}

	c.Index = len(g.candidates)
	if c.Expect != ExpectReject {
		g.ov.record(c)
	}
	g.candidates = append(g.candidates, c)
	return c, nil
}

func (g *Batch) build(s Strategy) (*Candidate, error) {
	switch s {
	case StrategyValidSpend:
		return g.validSpend()
	case StrategyDoubleSpend:
		return g.doubleSpend()
	case StrategyUnknownInput:
		return g.unknownInput()
	case StrategyUnknownDependency:
		return g.unknownDependency()
	case StrategyOverspend:
		return g.overspend()
	case StrategyOversizedWitness:
		return g.oversizedWitness()
	case StrategyInvalidScriptArgs:
		return g.invalidScriptArgs()
	case StrategyCycleExhaustion:
		return g.cycleExhaustion()
	case StrategyDuplicateInput:
		return g.duplicateInput()
	case StrategyImmatureSince:
		return g.immatureSince()
	case StrategyCellCreation:
		return g.cellCreation()
	}
	return nil, ErrUnknownStrategy
}

// finish turns d into a candidate. With no reasons given the verdict is
// predicted from d; otherwise d is expected to be rejected for one of the
// given reasons, or for whatever d would fail anyway. Corruption is applied
// last.
func (g *Batch) finish(s Strategy, d *draft, reasons ...types.RejectReason) *Candidate {
	c := &Candidate{
		Tx:        d.tx,
		Strategy:  s,
		Parents:   d.parents(),
		Conflicts: d.conflicts,
		inputs:    d.inputs,
		fee:       d.fee,
	}
	base := g.predict(d)
	switch {
	case len(reasons) > 0:
		c.Expect = ExpectReject
		c.ExpectedReasons = types.NewReasonSet(reasons...)
		if base != types.ReasonNone {
			c.ExpectedReasons |= types.NewReasonSet(base)
		}
	case base != types.ReasonNone:
		c.Expect = ExpectReject
		c.ExpectedReasons = types.NewReasonSet(base)
	default:
		c.Expect = ExpectAccept
	}

	g.corrupt(c)
	c.hash = c.Tx.Hash()
	return c
}

// corrupt damages one witness with the plan's corruption rate: a flipped
// byte, a truncation or a duplicated entry. The expectation is updated
// with what the damage does to the engine's fee and witness checks.
func (g *Batch) corrupt(c *Candidate) {
	if len(c.Tx.Witnesses) == 0 || !g.m.Chance(g.plan.CorruptionRate) {
		return
	}
	ws := make([][]byte, len(c.Tx.Witnesses))
	copy(ws, c.Tx.Witnesses)
	i := g.m.Intn(len(ws))
	switch g.m.Intn(3) {
	case 0:
		if len(ws[i]) > 0 {
			w := append([]byte(nil), ws[i]...)
			w[g.m.Intn(len(w))] ^= byte(1 + g.m.Intn(255))
			ws[i] = w
		}
	case 1:
		if len(ws[i]) > 0 {
			ws[i] = ws[i][:g.m.Intn(len(ws[i]))]
		}
	case 2:
		ws = append(ws, nil)
		copy(ws[i+1:], ws[i:])
	}
	c.Tx = c.Tx.WithWitnesses(ws)

	// size, then fee, then witnesses: the order the engine checks them in
	var reason types.RejectReason
	switch size := c.Tx.Size(); {
	case uint64(size) > g.cs.Params.MaxTxBytes:
		reason = types.ReasonOversized
	case c.fee < g.cs.Params.MinFee(size):
		reason = types.ReasonLowFee
	case !witnessesValid(c.Tx, c.inputs):
		reason = types.ReasonWitness
	default:
		return
	}
	if c.Expect == ExpectReject {
		c.ExpectedReasons |= types.NewReasonSet(reason)
		return
	}
	c.Expect = ExpectReject
	c.ExpectedReasons = types.NewReasonSet(reason)
}
