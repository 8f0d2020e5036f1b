package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/mempool"
	"github.com/cellfuzz/txpoolfuzz/seed"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

func makeState(t require.TestingT, count uint32) *state.ChainState {
	cfg := config.DefaultGenesisConfig()
	cfg.Endowments = []config.EndowmentConfig{{Capacity: 10_000 * types.ShannonsPerUnit, Count: count}}
	cs, err := state.MakeGenesisState(cfg)
	require.NoError(t, err)
	return cs
}

func makePlan(t require.TestingT, weights map[string]uint64) *Plan {
	cfg := config.DefaultGenerationPlan()
	if weights != nil {
		cfg.Weights = weights
	}
	p, err := NewPlan(cfg)
	require.NoError(t, err)
	return p
}

func TestNewPlan(t *testing.T) {
	cfg := config.DefaultGenerationPlan()
	cfg.Weights = map[string]uint64{"valid_spend": 1, "vaild_spend": 2, "teleport": 1}
	_, err := NewPlan(cfg)
	require.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "teleport, vaild_spend")

	cfg.Weights = map[string]uint64{"valid_spend": 0}
	_, err = NewPlan(cfg)
	require.Error(t, err)

	p := makePlan(t, map[string]uint64{"overspend": 3, "valid_spend": 1, "cell_creation": 0})
	require.Len(t, p.choices, 2)
	// compiled in the fixed strategy order, not map order
	assert.Equal(t, StrategyValidSpend, p.choices[0].strategy)
	assert.Equal(t, StrategyOverspend, p.choices[1].strategy)
	assert.EqualValues(t, 4, p.total)
	assert.EqualValues(t, 3, p.Weight(StrategyOverspend))
}

func TestChooseSkipsDisabledStrategies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := makePlan(t, map[string]uint64{
			"double_spend":    rapid.Uint64Range(1, 100).Draw(t, "w1"),
			"immature_since":  rapid.Uint64Range(1, 100).Draw(t, "w2"),
			"valid_spend":     0,
			"duplicate_input": 0,
		})
		m := seed.New(rapid.Uint64().Draw(t, "seed"), 0)
		for i := 0; i < 50; i++ {
			s := p.choose(m)
			if s != StrategyDoubleSpend && s != StrategyImmatureSince {
				t.Fatalf("chose disabled strategy %v", s)
			}
		}
	})
}

func TestGenerateIsDeterministic(t *testing.T) {
	cs := makeState(t, 32)
	plan := makePlan(t, nil)
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.Uint64().Draw(t, "seed")
		n := rapid.IntRange(1, 16).Draw(t, "n")

		m1, m2 := seed.New(s, 0), seed.New(s, 0)
		a, errA := GenerateBatch(plan, cs, m1, n)
		b, errB := GenerateBatch(plan, cs, m2, n)
		require.Equal(t, errA, errB)
		require.Len(t, b, len(a))
		for i := range a {
			require.Equal(t, a[i].Tx.WitnessHash(), b[i].Tx.WitnessHash())
			require.Equal(t, a[i].Strategy, b[i].Strategy)
			require.Equal(t, a[i].Expect, b[i].Expect)
			require.Equal(t, a[i].ExpectedReasons, b[i].ExpectedReasons)
		}
		require.Equal(t, m1.Draws(), m2.Draws())
	})
}

func TestGenerateDoesNotMutateState(t *testing.T) {
	cs := makeState(t, 8)
	before := cs.Copy()
	_, err := GenerateBatch(makePlan(t, nil), cs, seed.New(7, 0), 32)
	require.NoError(t, err)

	assert.Equal(t, before.Version, cs.Version)
	assert.Equal(t, before.LiveCount(), cs.LiveCount())
	assert.Equal(t, before.MarshalRecord(), cs.MarshalRecord())
}

func TestBatchNeverReusesExpectedSpends(t *testing.T) {
	cs := makeState(t, 4)
	plan := makePlan(t, map[string]uint64{"valid_spend": 1})
	cands, err := GenerateBatch(plan, cs, seed.New(3, 0), 20)
	require.NoError(t, err)
	require.Len(t, cands, 20)

	spent := map[types.CellReference]int{}
	for _, c := range cands {
		if c.Expect != ExpectAccept {
			continue
		}
		for _, in := range c.Tx.Inputs {
			prev, dup := spent[in.Previous]
			require.False(t, dup, "%v spends %v already spent by #%d", c, in.Previous, prev)
			spent[in.Previous] = c.Index
		}
	}
	// four genesis cells cannot feed twenty candidates alone
	var chained int
	for _, c := range cands {
		if len(c.Parents) > 0 {
			chained++
			for _, p := range c.Parents {
				assert.Less(t, p, c.Index)
			}
		}
	}
	assert.Positive(t, chained)
}

func TestEmptyLiveSet(t *testing.T) {
	cs := makeState(t, 1)
	ref, _ := cs.LiveAt(0)
	_, err := cs.Apply(&types.Transaction{Inputs: []types.CellInput{{Previous: ref}}})
	require.NoError(t, err)
	require.Zero(t, cs.LiveCount())

	plan := makePlan(t, map[string]uint64{"valid_spend": 1})
	c, err := Generate(plan, cs, seed.New(1, 0))
	require.NoError(t, err)
	assert.Equal(t, StrategyCellCreation, c.Strategy)
	assert.Equal(t, ExpectReject, c.Expect)
	assert.True(t, c.ExpectedReasons.Has(types.ReasonMalformed))
	assert.Empty(t, c.Tx.Inputs)

	plan.AllowEmptyFallback = false
	_, err = Generate(plan, cs, seed.New(1, 0))
	var genErr ErrGeneration
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StrategyValidSpend, genErr.Strategy)
	assert.ErrorIs(t, err, ErrNoLiveCells)
}

func TestStrategiesProduceTheirRejection(t *testing.T) {
	testCases := []struct {
		strategy Strategy
		reason   types.RejectReason
	}{
		{StrategyUnknownInput, types.ReasonUnknownInput},
		{StrategyUnknownDependency, types.ReasonUnknownDependency},
		{StrategyOversizedWitness, types.ReasonOversized},
		{StrategyInvalidScriptArgs, types.ReasonScript},
		{StrategyCycleExhaustion, types.ReasonCycleLimit},
		{StrategyDuplicateInput, types.ReasonMalformed},
		{StrategyImmatureSince, types.ReasonImmature},
		{StrategyCellCreation, types.ReasonMalformed},
	}
	cs := makeState(t, 16)
	for _, tc := range testCases {
		tc := tc
		t.Run(string(tc.strategy), func(t *testing.T) {
			plan := makePlan(t, map[string]uint64{string(tc.strategy): 1})
			plan.CorruptionRate = 0
			cands, err := GenerateBatch(plan, cs, seed.New(11, 0), 10)
			require.NoError(t, err)
			for _, c := range cands {
				assert.Equal(t, tc.strategy, c.Strategy)
				assert.Equal(t, ExpectReject, c.Expect)
				assert.True(t, c.ExpectedReasons.Has(tc.reason), c.String())
			}
		})
	}
}

func TestDoubleSpendConflictsWithEarlierCandidate(t *testing.T) {
	cs := makeState(t, 16)
	plan := makePlan(t, map[string]uint64{"valid_spend": 1})
	plan.CorruptionRate = 0
	b := NewBatch(plan, cs, seed.New(5, 0))
	first, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, ExpectAccept, first.Expect)

	plan.Weights = map[string]uint64{"double_spend": 1}
	compiled, err := NewPlan(plan.GenerationPlan)
	require.NoError(t, err)
	b.plan = compiled
	c, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, StrategyDoubleSpend, c.Strategy)
	assert.Equal(t, []int{first.Index}, c.Conflicts)
	assert.True(t, c.ExpectedReasons.Has(types.ReasonDoubleSpend))

	spent := map[types.CellReference]bool{}
	for _, in := range first.Tx.Inputs {
		spent[in.Previous] = true
	}
	var reused bool
	for _, in := range c.Tx.Inputs {
		reused = reused || spent[in.Previous]
	}
	assert.True(t, reused)
}

// The generator's expectations hold against the reference engine: over a
// few blocks every must-accept candidate whose parents were accepted is
// accepted, and every must-reject candidate is rejected for an expected
// reason.
func TestCandidatesMeetEngineExpectations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cs := makeState(t, 24)
		pool := mempool.NewTxPool(config.DefaultPoolConfig(), cs)
		plan := makePlan(t, nil)
		plan.SinceRate = rapid.Float64Range(0, 1).Draw(t, "since_rate")
		plan.CorruptionRate = rapid.Float64Range(0, 1).Draw(t, "corruption_rate")
		plan.SizeBiased = rapid.Bool().Draw(t, "size_biased")
		m := seed.New(rapid.Uint64().Draw(t, "seed"), cs.Tip().Timestamp)

		blocks := rapid.IntRange(1, 4).Draw(t, "blocks")
		for blk := 0; blk < blocks; blk++ {
			cands, _ := GenerateBatch(plan, cs, m, 12)
			accepted := make([]bool, len(cands))
			for _, c := range cands {
				err := pool.CheckTx(context.Background(), c.Tx)
				accepted[c.Index] = err == nil

				parentsOK := true
				for _, p := range c.Parents {
					parentsOK = parentsOK && accepted[p]
				}
				conflictAccepted := len(c.Conflicts) == 0
				for _, p := range c.Conflicts {
					conflictAccepted = conflictAccepted || accepted[p]
				}

				switch {
				case c.Expect == ExpectAccept && parentsOK:
					require.NoError(t, err, c.String())
				case c.Expect == ExpectReject && conflictAccepted:
					var rej *mempool.ErrRejected
					require.ErrorAs(t, err, &rej, c.String())
					require.True(t, c.ExpectedReasons.Has(rej.Reason), "%v rejected as %v", c, rej)
				}
				if err == nil {
					_, err := cs.Apply(c.Tx)
					require.NoError(t, err, c.String())
				}
			}
			require.NoError(t, m.AdvanceClock(m.BlockInterval(8*time.Second)))
			h := cs.SealBlock(m.Now())
			require.NoError(t, pool.Update(context.Background(), h))
		}
		require.NoError(t, cs.CheckConsistency())
	})
}
