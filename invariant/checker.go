// Package invariant judges each submission: given the state before it, the
// candidate, the engine's answer and the state after it, Check reports every
// invariant the combination violates.
package invariant

import (
	"bytes"
	"fmt"

	"github.com/cellfuzz/txpoolfuzz/generator"
	"github.com/cellfuzz/txpoolfuzz/proxy"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

// Checker checks submissions in batch order. It remembers which candidates
// of the current batch were accepted, since a candidate's expectation is
// conditional on its parents and conflicts.
type Checker struct {
	viewer   proxy.CellViewer
	accepted map[int]bool
}

// Option sets an optional parameter on the Checker.
type Option func(*Checker)

// WithCellViewer enables the comparison of the harness' live set with the
// engine's.
func WithCellViewer(v proxy.CellViewer) Option {
	return func(c *Checker) { c.viewer = v }
}

func NewChecker(options ...Option) *Checker {
	c := &Checker{accepted: make(map[int]bool)}
	for _, option := range options {
		option(c)
	}
	return c
}

// StartBatch forgets the outcomes of the previous batch.
func (c *Checker) StartBatch() {
	c.accepted = make(map[int]bool)
}

// Check returns the violations of one submission. after is the state once
// the driver applied an accepted candidate; if applying failed, after is
// unchanged and the driver reports the failure itself.
func (c *Checker) Check(
	before *state.Prestate,
	cand *generator.Candidate,
	outcome types.Outcome,
	after *state.ChainState,
) []types.Violation {
	defer func() { c.accepted[cand.Index] = outcome.IsAccepted() }()

	var vs []types.Violation
	switch outcome.Kind {
	case types.OutcomeAccepted:
		vs = append(vs, c.checkAccepted(before, cand, after)...)
	case types.OutcomeRejected:
		vs = append(vs, c.checkRejected(before, cand, outcome, after)...)
	default:
		if after.Version != before.Version {
			vs = append(vs, finding(types.ViolationLiveSetConsistency,
				"state changed from version %d to %d after an engine fault", before.Version, after.Version))
		}
	}
	if c.viewer != nil {
		vs = append(vs, c.checkEngineView(cand, outcome, after)...)
	}
	return vs
}

func (c *Checker) checkAccepted(before *state.Prestate, cand *generator.Candidate, after *state.ChainState) []types.Violation {
	var vs []types.Violation
	tx := cand.Tx

	if cand.Expect == generator.ExpectReject && c.anyAccepted(cand.Conflicts, true) {
		vs = append(vs, finding(types.ViolationImplausibleAcceptance,
			"%s candidate expected to fail with %v was accepted", cand.Strategy, cand.ExpectedReasons))
	}

	seen := make(map[types.CellReference]struct{}, len(before.Inputs))
	for _, in := range before.Inputs {
		if _, dup := seen[in.Ref]; dup {
			vs = append(vs, finding(types.ViolationDoubleAccept, "input %v is spent twice by one transaction", in.Ref))
		}
		seen[in.Ref] = struct{}{}
		if in.Status != state.InputLive {
			vs = append(vs, finding(types.ViolationDoubleAccept, "accepted input %v was %v", in.Ref, in.Status))
		}
	}

	inCap, allLive, err := before.InputCapacity()
	switch {
	case err != nil:
		vs = append(vs, finding(types.ViolationCapacityConservation, "input capacity: %v", err))
	case allLive:
		outCap, err := tx.OutputCapacity()
		if err != nil {
			vs = append(vs, finding(types.ViolationCapacityConservation, "output capacity: %v", err))
		} else if outCap > inCap {
			vs = append(vs, finding(types.ViolationCapacityConservation,
				"outputs carry %d, inputs only %d", outCap, inCap))
		}
	}

	// the driver could not apply the transaction; it reports that itself
	if after.Version == before.Version {
		return vs
	}
	want := before.LiveCount - len(tx.Inputs) + len(tx.Outputs)
	if got := after.LiveCount(); got != want {
		vs = append(vs, finding(types.ViolationLiveSetConsistency,
			"live set has %d cells after apply, want %d", got, want))
	}
	for _, in := range tx.Inputs {
		if after.IsLive(in.Previous) {
			vs = append(vs, finding(types.ViolationLiveSetConsistency, "consumed input %v is still live", in.Previous))
		}
	}
	for i := range tx.Outputs {
		ref := types.CellReference{TxHash: cand.Hash(), Index: uint32(i)}
		if !after.IsLive(ref) {
			vs = append(vs, finding(types.ViolationLiveSetConsistency, "created output %v is not live", ref))
		}
	}
	return vs
}

func (c *Checker) checkRejected(before *state.Prestate, cand *generator.Candidate, outcome types.Outcome, after *state.ChainState) []types.Violation {
	var vs []types.Violation
	if after.Version != before.Version {
		vs = append(vs, finding(types.ViolationLiveSetConsistency,
			"state changed from version %d to %d for a rejected transaction", before.Version, after.Version))
	}

	switch cand.Expect {
	case generator.ExpectAccept:
		// a full pool is the engine's call to make
		if outcome.Reason == types.ReasonPoolFull {
			return vs
		}
		if c.allAccepted(cand.Parents) {
			vs = append(vs, finding(types.ViolationUnexpectedRejection,
				"%s candidate rejected: %v", cand.Strategy, outcome))
		}
	case generator.ExpectReject:
		if !cand.ExpectedReasons.IsEmpty() && !cand.ExpectedReasons.Has(outcome.Reason) {
			vs = append(vs, warning(types.ViolationReasonMismatch,
				"%s candidate rejected as %v, expected one of %v", cand.Strategy, outcome.Reason, cand.ExpectedReasons))
		}
	}
	return vs
}

// checkEngineView compares the cells the candidate touched, and the size of
// the live set, between the harness and the engine.
func (c *Checker) checkEngineView(cand *generator.Candidate, outcome types.Outcome, after *state.ChainState) []types.Violation {
	var vs []types.Violation
	for _, in := range cand.Tx.Inputs {
		harness, ok := after.LiveCell(in.Previous)
		engine, engineOK := c.viewer.LiveCell(in.Previous)
		switch {
		case ok != engineOK:
			vs = append(vs, finding(types.ViolationEngineDivergence,
				"input %v: live in harness %t, in engine %t", in.Previous, ok, engineOK))
		case ok && !bytes.Equal(harness.Output.Marshal(), engine.Marshal()):
			vs = append(vs, finding(types.ViolationEngineDivergence, "input %v differs between harness and engine", in.Previous))
		}
	}
	for i := range cand.Tx.Outputs {
		ref := types.CellReference{TxHash: cand.Hash(), Index: uint32(i)}
		harness, ok := after.LiveCell(ref)
		engine, engineOK := c.viewer.LiveCell(ref)
		switch {
		case ok != engineOK:
			vs = append(vs, finding(types.ViolationEngineDivergence,
				"output %v (%v): live in harness %t, in engine %t", ref, outcome.Label(), ok, engineOK))
		case ok && !bytes.Equal(harness.Output.Marshal(), engine.Marshal()):
			vs = append(vs, finding(types.ViolationEngineDivergence, "output %v differs between harness and engine", ref))
		}
	}
	if h, e := after.LiveCount(), c.viewer.LiveCount(); h != e {
		vs = append(vs, warning(types.ViolationEngineDivergence, "harness has %d live cells, engine %d", h, e))
	}
	return vs
}

// allAccepted reports whether every candidate in idx was accepted.
func (c *Checker) allAccepted(idx []int) bool {
	for _, i := range idx {
		if !c.accepted[i] {
			return false
		}
	}
	return true
}

// anyAccepted reports whether any candidate in idx was accepted, or
// ifEmpty when idx is empty.
func (c *Checker) anyAccepted(idx []int, ifEmpty bool) bool {
	if len(idx) == 0 {
		return ifEmpty
	}
	for _, i := range idx {
		if c.accepted[i] {
			return true
		}
	}
	return false
}

func finding(kind types.ViolationKind, format string, args ...any) types.Violation {
	return types.Violation{Kind: kind, Severity: types.SeverityFinding, Detail: fmt.Sprintf(format, args...)}
}

func warning(kind types.ViolationKind, format string, args ...any) types.Violation {
	return types.Violation{Kind: kind, Severity: types.SeverityWarning, Detail: fmt.Sprintf(format, args...)}
}
