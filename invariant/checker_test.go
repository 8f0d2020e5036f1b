package invariant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/generator"
	"github.com/cellfuzz/txpoolfuzz/invariant"
	"github.com/cellfuzz/txpoolfuzz/mempool"
	"github.com/cellfuzz/txpoolfuzz/seed"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

func makeState(t *testing.T) *state.ChainState {
	t.Helper()
	cfg := config.DefaultGenesisConfig()
	cfg.Endowments = []config.EndowmentConfig{{Capacity: 10_000 * types.ShannonsPerUnit, Count: 16}}
	cs, err := state.MakeGenesisState(cfg)
	require.NoError(t, err)
	return cs
}

// generate returns n candidates built with strategy alone.
func generate(t *testing.T, cs *state.ChainState, strategy generator.Strategy, n int) []*generator.Candidate {
	t.Helper()
	cfg := config.DefaultGenerationPlan()
	cfg.Weights = map[string]uint64{string(strategy): 1}
	cfg.CorruptionRate = 0
	plan, err := generator.NewPlan(cfg)
	require.NoError(t, err)
	cands, err := generator.GenerateBatch(plan, cs, seed.New(42, 0), n)
	require.NoError(t, err)
	require.Len(t, cands, n)
	return cands
}

func kinds(vs []types.Violation) []types.ViolationKind {
	out := make([]types.ViolationKind, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Kind)
	}
	return out
}

func TestAcceptedValidSpend(t *testing.T) {
	cs := makeState(t)
	c := generate(t, cs, generator.StrategyValidSpend, 1)[0]
	require.Equal(t, generator.ExpectAccept, c.Expect)

	before := cs.Capture(c.Tx)
	_, err := cs.Apply(c.Tx)
	require.NoError(t, err)

	vs := invariant.NewChecker().Check(before, c, types.Accepted(), cs)
	assert.Empty(t, vs)
}

func TestAcceptedSpendOfDeadCell(t *testing.T) {
	cs := makeState(t)
	c := generate(t, cs, generator.StrategyValidSpend, 1)[0]
	_, err := cs.Apply(c.Tx)
	require.NoError(t, err)

	// the engine accepts the same spend again; applying it fails, so the
	// state does not move
	before := cs.Capture(c.Tx)
	vs := invariant.NewChecker().Check(before, c, types.Accepted(), cs)
	require.NotEmpty(t, vs)
	for _, v := range vs {
		assert.Equal(t, types.ViolationDoubleAccept, v.Kind)
		assert.Equal(t, types.SeverityFinding, v.Severity)
	}
}

func TestAcceptedOverspend(t *testing.T) {
	cs := makeState(t)
	c := generate(t, cs, generator.StrategyOverspend, 1)[0]
	require.Equal(t, generator.ExpectReject, c.Expect)

	before := cs.Capture(c.Tx)
	_, err := cs.Apply(c.Tx)
	require.NoError(t, err)

	vs := invariant.NewChecker().Check(before, c, types.Accepted(), cs)
	assert.Contains(t, kinds(vs), types.ViolationCapacityConservation)
	assert.Contains(t, kinds(vs), types.ViolationImplausibleAcceptance)
	assert.True(t, types.HasFinding(vs))
}

func TestLiveSetConsistency(t *testing.T) {
	cs := makeState(t)
	c := generate(t, cs, generator.StrategyValidSpend, 1)[0]

	before := cs.Capture(c.Tx)
	before.LiveCount++
	_, err := cs.Apply(c.Tx)
	require.NoError(t, err)

	vs := invariant.NewChecker().Check(before, c, types.Accepted(), cs)
	assert.Equal(t, []types.ViolationKind{types.ViolationLiveSetConsistency}, kinds(vs))

	// a rejection must leave the state alone
	c2 := generate(t, cs, generator.StrategyUnknownInput, 1)[0]
	before = cs.Capture(c2.Tx)
	before.Version--
	vs = invariant.NewChecker().Check(before, c2, types.Rejected(types.ReasonUnknownInput, ""), cs)
	assert.Equal(t, []types.ViolationKind{types.ViolationLiveSetConsistency}, kinds(vs))
}

func TestRejections(t *testing.T) {
	cs := makeState(t)
	valid := generate(t, cs, generator.StrategyValidSpend, 1)[0]
	immature := generate(t, cs, generator.StrategyImmatureSince, 1)[0]

	testCases := []struct {
		name    string
		cand    *generator.Candidate
		outcome types.Outcome
		want    []types.Violation
	}{
		{
			"valid spend rejected",
			valid,
			types.Rejected(types.ReasonScript, "boom"),
			[]types.Violation{{Kind: types.ViolationUnexpectedRejection, Severity: types.SeverityFinding}},
		},
		{
			"valid spend refused by a full pool",
			valid,
			types.Rejected(types.ReasonPoolFull, ""),
			nil,
		},
		{
			"expected reason",
			immature,
			types.Rejected(types.ReasonImmature, ""),
			nil,
		},
		{
			"different reason",
			immature,
			types.Rejected(types.ReasonLowFee, ""),
			[]types.Violation{{Kind: types.ViolationReasonMismatch, Severity: types.SeverityWarning}},
		},
		{
			"engine fault",
			valid,
			types.EngineFault(types.FaultTimeout, "slow"),
			nil,
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			before := cs.Capture(tc.cand.Tx)
			vs := invariant.NewChecker().Check(before, tc.cand, tc.outcome, cs)
			require.Len(t, vs, len(tc.want))
			for i := range vs {
				assert.Equal(t, tc.want[i].Kind, vs[i].Kind)
				assert.Equal(t, tc.want[i].Severity, vs[i].Severity)
				assert.NotEmpty(t, vs[i].Detail)
			}
		})
	}
}

func TestExpectationsFollowTheBatch(t *testing.T) {
	cs := makeState(t)
	parent := generate(t, cs, generator.StrategyValidSpend, 1)[0]
	parent.Index = 0

	child := generate(t, cs, generator.StrategyValidSpend, 1)[0]
	child.Index, child.Parents = 1, []int{0}

	conflicting := generate(t, cs, generator.StrategyDoubleSpend, 1)[0]
	conflicting.Index, conflicting.Conflicts = 2, []int{0}

	rejected := types.Rejected(types.ReasonUnknownInput, "")

	// the parent was rejected: nothing can be said about its child, and a
	// conflict with it may well be accepted
	c := invariant.NewChecker()
	assert.Empty(t, c.Check(cs.Capture(parent.Tx), parent, types.EngineFault(types.FaultTimeout, ""), cs))
	assert.Empty(t, c.Check(cs.Capture(child.Tx), child, rejected, cs))
	vs := c.Check(cs.Capture(conflicting.Tx), conflicting, types.Accepted(), cs)
	assert.NotContains(t, kinds(vs), types.ViolationImplausibleAcceptance)

	// once the parent is accepted both become findings
	c.StartBatch()
	before := cs.Capture(parent.Tx)
	_, err := cs.Apply(parent.Tx)
	require.NoError(t, err)
	assert.Empty(t, c.Check(before, parent, types.Accepted(), cs))
	vs = c.Check(cs.Capture(child.Tx), child, rejected, cs)
	assert.Equal(t, []types.ViolationKind{types.ViolationUnexpectedRejection}, kinds(vs))
	vs = c.Check(cs.Capture(conflicting.Tx), conflicting, types.Accepted(), cs)
	assert.Contains(t, kinds(vs), types.ViolationImplausibleAcceptance)
}

type fakeViewer struct {
	cells map[types.CellReference]types.CellOutput
	count int
}

func (v fakeViewer) LiveCell(ref types.CellReference) (types.CellOutput, bool) {
	out, ok := v.cells[ref]
	return out, ok
}

func (v fakeViewer) LiveCount() int { return v.count }

func TestEngineView(t *testing.T) {
	cs := makeState(t)
	pool := mempool.NewTxPool(config.DefaultPoolConfig(), cs)
	c := generate(t, cs, generator.StrategyValidSpend, 1)[0]
	require.Equal(t, generator.ExpectAccept, c.Expect)

	require.NoError(t, pool.CheckTx(context.Background(), c.Tx))
	before := cs.Capture(c.Tx)
	_, err := cs.Apply(c.Tx)
	require.NoError(t, err)

	vs := invariant.NewChecker(invariant.WithCellViewer(pool)).Check(before, c, types.Accepted(), cs)
	assert.Empty(t, vs)

	// an engine that still sees the inputs and lost the outputs
	stale := fakeViewer{cells: map[types.CellReference]types.CellOutput{}, count: cs.LiveCount()}
	for _, in := range c.Tx.Inputs {
		stale.cells[in.Previous] = types.CellOutput{Capacity: 1}
	}
	vs = invariant.NewChecker(invariant.WithCellViewer(stale)).Check(before, c, types.Accepted(), cs)
	require.Len(t, vs, len(c.Tx.Inputs)+len(c.Tx.Outputs))
	for _, v := range vs {
		assert.Equal(t, types.ViolationEngineDivergence, v.Kind)
		assert.Equal(t, types.SeverityFinding, v.Severity)
	}

	stale = fakeViewer{cells: map[types.CellReference]types.CellOutput{}, count: cs.LiveCount() + 3}
	for i, out := range c.Tx.Outputs {
		stale.cells[c.Tx.OutputReference(i)] = out
	}
	vs = invariant.NewChecker(invariant.WithCellViewer(stale)).Check(before, c, types.Accepted(), cs)
	require.Len(t, vs, 1)
	assert.Equal(t, types.SeverityWarning, vs[0].Severity)
}
