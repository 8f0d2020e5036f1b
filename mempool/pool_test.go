package mempool

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

const endowment = 10_000 * types.ShannonsPerUnit

type testChain struct {
	t    *testing.T
	cs   *state.ChainState
	pool *TxPool
	salt uint64
}

func newTestChain(t *testing.T, cfg config.PoolConfig) *testChain {
	t.Helper()
	gen := config.DefaultGenesisConfig()
	gen.Endowments = []config.EndowmentConfig{{Capacity: endowment, Count: 8}}
	cs, err := state.MakeGenesisState(gen)
	require.NoError(t, err)
	return &testChain{t: t, cs: cs, pool: NewTxPool(cfg, cs)}
}

func (c *testChain) ref(i int) types.CellReference {
	ref, _ := c.cs.LiveAt(i)
	return ref
}

func (c *testChain) lock(result, cycles uint64) types.Script {
	c.salt++
	salt := make([]byte, 8)
	binary.BigEndian.PutUint64(salt, c.salt)
	return types.Script{
		CodeHash: c.cs.Anchor.DataHash,
		HashType: types.HashTypeData,
		Args:     types.MockScriptArgs(result, cycles, salt),
	}
}

// spend consumes refs into one output paying fee. Every input gets a framed
// witness.
func (c *testChain) spend(fee uint64, refs ...types.CellReference) *types.Transaction {
	tx := &types.Transaction{CellDeps: []types.CellDep{c.cs.Anchor.Dep}}
	var total uint64
	for _, ref := range refs {
		if cell, ok := c.cs.LiveCell(ref); ok {
			total += cell.Output.Capacity
		} else {
			total += endowment
		}
		tx.Inputs = append(tx.Inputs, types.CellInput{Previous: ref})
		tx.Witnesses = append(tx.Witnesses, types.FrameWitness([]byte("sig")))
	}
	tx.Outputs = []types.CellOutput{{Capacity: total - fee, Lock: c.lock(0, 1000)}}
	return tx
}

// apply applies tx to the harness state.
func (c *testChain) apply(tx *types.Transaction) {
	_, err := c.cs.Apply(tx)
	require.NoError(c.t, err)
}

// seal closes a block on both sides.
func (c *testChain) seal() types.Header {
	h := c.cs.SealBlock(c.cs.Tip().Timestamp + 8000)
	require.NoError(c.t, c.pool.Update(context.Background(), h))
	return h
}

func requireReason(t *testing.T, err error, want types.RejectReason) {
	t.Helper()
	var rej *ErrRejected
	require.ErrorAs(t, err, &rej, "want %v", want)
	assert.Equal(t, want, rej.Reason, rej.Error())
}

func TestCheckTxAcceptsValidSpend(t *testing.T) {
	c := newTestChain(t, config.DefaultPoolConfig())
	ref := c.ref(0)
	tx := c.spend(10_000, ref)

	require.NoError(t, c.pool.CheckTx(context.Background(), tx))
	assert.Equal(t, 1, c.pool.Size())

	_, live := c.pool.LiveCell(ref)
	assert.False(t, live)
	out, live := c.pool.LiveCell(tx.OutputReference(0))
	require.True(t, live)
	assert.Equal(t, tx.Outputs[0], out)
	assert.Equal(t, 8, c.pool.LiveCount())

	// same tx again
	requireReason(t, c.pool.CheckTx(context.Background(), tx), types.ReasonDuplicate)

	// another tx spending the same cell
	requireReason(t, c.pool.CheckTx(context.Background(), c.spend(20_000, ref)), types.ReasonDoubleSpend)
}

func TestCheckTxRejections(t *testing.T) {
	type mutate func(c *testChain, tx *types.Transaction)

	testCases := []struct {
		name   string
		mutate mutate
		cfg    func(*config.PoolConfig)
		want   types.RejectReason
	}{
		{"no inputs", func(_ *testChain, tx *types.Transaction) {
			tx.Inputs = nil
		}, nil, types.ReasonMalformed},
		{"no outputs", func(_ *testChain, tx *types.Transaction) {
			tx.Outputs = nil
		}, nil, types.ReasonMalformed},
		{"unsupported dep type", func(_ *testChain, tx *types.Transaction) {
			tx.CellDeps[0].DepType = 7
		}, nil, types.ReasonMalformed},
		{"reserved since bits", func(_ *testChain, tx *types.Transaction) {
			tx.Inputs[0].Since = 1 << 58
		}, nil, types.ReasonMalformed},
		{"duplicate input", func(_ *testChain, tx *types.Transaction) {
			tx.Inputs = append(tx.Inputs, tx.Inputs[0])
			tx.Witnesses = append(tx.Witnesses, tx.Witnesses[0])
		}, nil, types.ReasonMalformed},
		{"oversized", func(_ *testChain, tx *types.Transaction) {
			tx.Witnesses = append(tx.Witnesses, make([]byte, 600_000))
		}, nil, types.ReasonOversized},
		{"unknown input", func(_ *testChain, tx *types.Transaction) {
			tx.Inputs[0].Previous = types.CellReference{TxHash: types.Sum([]byte("nowhere"))}
		}, nil, types.ReasonUnknownInput},
		{"unknown cell dep", func(_ *testChain, tx *types.Transaction) {
			tx.CellDeps = append(tx.CellDeps, types.CellDep{OutPoint: types.CellReference{TxHash: types.Sum([]byte("dep"))}})
		}, nil, types.ReasonUnknownDependency},
		{"unknown header dep", func(_ *testChain, tx *types.Transaction) {
			tx.HeaderDeps = []types.Hash{types.Sum([]byte("header"))}
		}, nil, types.ReasonUnknownDependency},
		{"immature absolute block since", func(_ *testChain, tx *types.Transaction) {
			tx.Inputs[0].Since = types.Since{Metric: types.SinceBlockNumber, Value: 100}.Encode()
		}, nil, types.ReasonImmature},
		{"immature relative timestamp since", func(_ *testChain, tx *types.Transaction) {
			tx.Inputs[0].Since = types.Since{Relative: true, Metric: types.SinceTimestamp, Value: 60}.Encode()
		}, nil, types.ReasonImmature},
		{"overspend", func(_ *testChain, tx *types.Transaction) {
			tx.Outputs[0].Capacity = endowment + 1
		}, nil, types.ReasonInsufficientCapacity},
		{"output below occupied capacity", func(c *testChain, tx *types.Transaction) {
			tx.Outputs[0].Capacity--
			tx.Outputs = append(tx.Outputs, types.CellOutput{Capacity: 1, Lock: c.lock(0, 0)})
		}, nil, types.ReasonInsufficientCapacity},
		{"capacity overflow", func(c *testChain, tx *types.Transaction) {
			tx.Outputs = append(tx.Outputs, types.CellOutput{Capacity: ^uint64(0), Lock: c.lock(0, 0)})
		}, nil, types.ReasonCapacityOverflow},
		{"low fee", func(_ *testChain, tx *types.Transaction) {
			tx.Outputs[0].Capacity = endowment
		}, nil, types.ReasonLowFee},
		{"missing witness", func(_ *testChain, tx *types.Transaction) {
			tx.Witnesses = nil
		}, nil, types.ReasonWitness},
		{"truncated witness", func(_ *testChain, tx *types.Transaction) {
			tx.Witnesses[0] = tx.Witnesses[0][:5]
		}, nil, types.ReasonWitness},
		{"type script fails", func(c *testChain, tx *types.Transaction) {
			typ := c.lock(3, 10)
			tx.Outputs[0].Type = &typ
		}, nil, types.ReasonScript},
		{"short script args", func(c *testChain, tx *types.Transaction) {
			typ := c.lock(0, 10)
			typ.Args = typ.Args[:8]
			tx.Outputs[0].Type = &typ
		}, nil, types.ReasonScript},
		{"script code not in deps", func(c *testChain, tx *types.Transaction) {
			typ := c.lock(0, 10)
			typ.CodeHash = types.Sum([]byte("other code"))
			tx.Outputs[0].Type = &typ
		}, nil, types.ReasonScript},
		{"cycle limit", func(c *testChain, tx *types.Transaction) {
			typ := c.lock(0, c.cs.Params.MaxTxCycles+1)
			tx.Outputs[0].Type = &typ
		}, nil, types.ReasonCycleLimit},
		{"pool full", func(*testChain, *types.Transaction) {}, func(cfg *config.PoolConfig) {
			cfg.MaxTxs = 1
		}, types.ReasonPoolFull},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultPoolConfig()
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			c := newTestChain(t, cfg)
			if tc.want == types.ReasonPoolFull {
				require.NoError(t, c.pool.CheckTx(context.Background(), c.spend(10_000, c.ref(1))))
			}
			tx := c.spend(10_000, c.ref(0))
			tc.mutate(c, tx)
			requireReason(t, c.pool.CheckTx(context.Background(), tx), tc.want)
		})
	}
}

func TestCheckTxTypeScriptByTypeHash(t *testing.T) {
	c := newTestChain(t, config.DefaultPoolConfig())
	tx := c.spend(10_000, c.ref(0))
	typ := c.lock(0, 500)
	typ.CodeHash = c.cs.Anchor.TypeHash
	typ.HashType = types.HashTypeType
	tx.Outputs[0].Type = &typ
	require.NoError(t, c.pool.CheckTx(context.Background(), tx))
}

func TestUpdateCommitsPendingTxs(t *testing.T) {
	c := newTestChain(t, config.DefaultPoolConfig())
	ref := c.ref(0)
	tx := c.spend(10_000, ref)
	require.NoError(t, c.pool.CheckTx(context.Background(), tx))
	c.apply(tx)
	c.seal()

	assert.Zero(t, c.pool.Size())
	requireReason(t, c.pool.CheckTx(context.Background(), tx), types.ReasonDuplicate)
	requireReason(t, c.pool.CheckTx(context.Background(), c.spend(20_000, ref)), types.ReasonDoubleSpend)

	// the committed output is spendable
	child := c.spend(10_000, tx.OutputReference(0))
	require.NoError(t, c.pool.CheckTx(context.Background(), child))
}

func TestUpdateRejectsBadHeaders(t *testing.T) {
	c := newTestChain(t, config.DefaultPoolConfig())
	tip := c.cs.Tip()

	err := c.pool.Update(context.Background(), types.Header{Height: tip.Height + 2, ParentHash: tip.Hash})
	var mismatch ErrHeaderMismatch
	require.ErrorAs(t, err, &mismatch)

	// the pool never saw this tx
	c.apply(c.spend(10_000, c.ref(0)))
	h := c.cs.SealBlock(tip.Timestamp + 1000)
	require.ErrorIs(t, c.pool.Update(context.Background(), h), ErrUnknownBlockTx)
}

func TestRelativeSinceMaturity(t *testing.T) {
	c := newTestChain(t, config.DefaultPoolConfig())
	for i := 0; i < 3; i++ {
		c.seal()
	}

	tx := c.spend(10_000, c.ref(0))
	tx.Inputs[0].Since = types.Since{Relative: true, Metric: types.SinceBlockNumber, Value: 4}.Encode()
	requireReason(t, c.pool.CheckTx(context.Background(), tx), types.ReasonImmature)

	tx = c.spend(10_000, c.ref(0))
	tx.Inputs[0].Since = types.Since{Relative: true, Metric: types.SinceBlockNumber, Value: 3}.Encode()
	require.NoError(t, c.pool.CheckTx(context.Background(), tx))

	// a cell created by a pending tx has no creation header yet
	child := c.spend(10_000, tx.OutputReference(0))
	child.Inputs[0].Since = types.Since{Relative: true, Metric: types.SinceBlockNumber, Value: 1}.Encode()
	requireReason(t, c.pool.CheckTx(context.Background(), child), types.ReasonImmature)
}

func TestRecentRejectsAnswerResolveFailures(t *testing.T) {
	c := newTestChain(t, config.DefaultPoolConfig())
	tx := c.spend(10_000, types.CellReference{TxHash: types.Sum([]byte("nowhere"))})

	requireReason(t, c.pool.CheckTx(context.Background(), tx), types.ReasonUnknownInput)
	err := c.pool.CheckTx(context.Background(), tx)
	requireReason(t, err, types.ReasonUnknownInput)
	assert.Contains(t, err.Error(), "recently rejected")

	// non-resolve failures are verified again
	low := c.spend(0, c.ref(0))
	requireReason(t, c.pool.CheckTx(context.Background(), low), types.ReasonLowFee)
	err = c.pool.CheckTx(context.Background(), low)
	requireReason(t, err, types.ReasonLowFee)
	assert.NotContains(t, err.Error(), "recently rejected")
}

func TestCheckTxAfterCancelAdmitsNothing(t *testing.T) {
	c := newTestChain(t, config.DefaultPoolConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.pool.CheckTx(ctx, c.spend(10_000, c.ref(0)))
	require.True(t, errors.Is(err, context.Canceled), err)
	var rej *ErrRejected
	assert.False(t, errors.As(err, &rej))
	assert.Zero(t, c.pool.Size())
}

func TestScriptFailureReportedInGroupOrder(t *testing.T) {
	cfg := config.DefaultPoolConfig()
	cfg.ScriptWorkers = 8
	c := newTestChain(t, cfg)

	tx := c.spend(10_000, c.ref(0))
	for i := 0; i < 16; i++ {
		typ := c.lock(uint64(i+1), 10)
		tx.Outputs = append(tx.Outputs, types.CellOutput{Lock: c.lock(0, 0), Type: &typ})
	}
	for i := 0; i < 10; i++ {
		err := c.pool.CheckTx(context.Background(), tx)
		requireReason(t, err, types.ReasonScript)
		assert.Contains(t, err.Error(), "exited with code 1")
	}
}
