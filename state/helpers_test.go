package state_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/state"
	"github.com/cellfuzz/txpoolfuzz/types"
)

func genesisConfig(endowments ...config.EndowmentConfig) config.GenesisConfig {
	cfg := config.DefaultGenesisConfig()
	cfg.Params.MinFeeRate = 0
	cfg.Params.ByteCapacity = 0
	cfg.Endowments = endowments
	return cfg
}

func makeState(t *testing.T, endowments ...config.EndowmentConfig) *state.ChainState {
	t.Helper()
	s, err := state.MakeGenesisState(genesisConfig(endowments...))
	require.NoError(t, err)
	return s
}

// spend builds a transaction consuming refs and splitting their capacity
// minus fee over n outputs.
func spend(s *state.ChainState, refs []types.CellReference, n int, fee uint64) *types.Transaction {
	tx := &types.Transaction{CellDeps: []types.CellDep{s.Anchor.Dep}}
	var total uint64
	for _, ref := range refs {
		cell, _ := s.LiveCell(ref)
		total += cell.Output.Capacity
		tx.Inputs = append(tx.Inputs, types.CellInput{Previous: ref})
	}
	left := total - fee
	for i := 0; i < n; i++ {
		c := left / uint64(n-i)
		left -= c
		tx.Outputs = append(tx.Outputs, types.CellOutput{
			Capacity: c,
			Lock: types.Script{
				CodeHash: s.Anchor.DataHash,
				Args:     types.MockScriptArgs(0, 10, []byte{byte(i)}),
			},
		})
	}
	return tx
}
