//go:build gofuzz || go1.21

package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/generator"
	"github.com/cellfuzz/txpoolfuzz/mempool"
	"github.com/cellfuzz/txpoolfuzz/seed"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

func genesis(tb testing.TB) *state.ChainState {
	tb.Helper()
	cfg := config.DefaultGenesisConfig()
	cfg.Endowments = []config.EndowmentConfig{{Capacity: 10_000 * types.ShannonsPerUnit, Count: 64}}
	cs, err := state.MakeGenesisState(cfg)
	if err != nil {
		tb.Fatal(err)
	}
	return cs
}

// addCorpus seeds f with the encodings of a generated batch, covering every
// strategy of the default plan.
func addCorpus(f *testing.F, cs *state.ChainState) {
	plan, err := generator.NewPlan(config.DefaultGenerationPlan())
	if err != nil {
		f.Fatal(err)
	}
	// generation errors only shorten the batch
	cands, _ := generator.GenerateBatch(plan, cs, seed.New(7, 0), 64)
	for _, c := range cands {
		f.Add(c.Tx.Marshal())
	}
}

func FuzzMempool(f *testing.F) {
	cs := genesis(f)
	addCorpus(f, cs)

	pool := mempool.NewTxPool(config.DefaultPoolConfig(), cs)
	ctx := context.Background()

	f.Fuzz(func(t *testing.T, data []byte) {
		tx, err := types.TransactionFromBytes(data)
		if err != nil {
			return
		}
		size := pool.Size()
		err = pool.CheckTx(ctx, tx)
		if err == nil {
			if pool.Size() != size+1 {
				t.Fatalf("accepted %v but pool size went from %d to %d", tx.Hash(), size, pool.Size())
			}
			return
		}
		var rej *mempool.ErrRejected
		if !errors.As(err, &rej) {
			t.Fatalf("CheckTx returned an unclassified error: %v", err)
		}
		if pool.Size() != size {
			t.Fatalf("rejected %v but pool size went from %d to %d", tx.Hash(), size, pool.Size())
		}
	})
}
