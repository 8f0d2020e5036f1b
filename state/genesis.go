package state

import (
	"encoding/binary"
	"fmt"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/types"
)

const anchorTag = "txpoolfuzz/anchor"

// MakeGenesisState builds the chain at height 0. The genesis block holds a
// single cellbase transaction whose first output is the script anchor and
// whose remaining outputs are the endowment cells.
func MakeGenesisState(cfg config.GenesisConfig) (*ChainState, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	params := cfg.Params

	anchorType := types.Script{
		HashType: types.HashTypeType,
		Args:     binary.LittleEndian.AppendUint64([]byte(anchorTag), cfg.Seed),
	}
	anchorOut := types.CellOutput{
		Lock: types.Script{HashType: types.HashTypeData},
		Type: &anchorType,
		Data: types.MockVMCode,
	}
	occupied, err := anchorOut.OccupiedCapacity(params.ByteCapacity)
	if err != nil {
		return nil, err
	}
	anchorOut.Capacity = occupied

	dataHash := types.Sum(types.MockVMCode)
	cellbase := &types.Transaction{Outputs: []types.CellOutput{anchorOut}}

	caps := []uint64{anchorOut.Capacity}
	var index uint32
	for i, e := range cfg.Endowments {
		for j := uint32(0); j < e.Count; j++ {
			salt := binary.BigEndian.AppendUint32(nil, index)
			out := types.CellOutput{
				Capacity: e.Capacity,
				Lock: types.Script{
					CodeHash: dataHash,
					HashType: types.HashTypeData,
					Args:     types.MockScriptArgs(0, 0, salt),
				},
				Data: endowmentData(index, e.DataSize),
			}
			need, err := out.OccupiedCapacity(params.ByteCapacity)
			if err != nil {
				return nil, err
			}
			if need > out.Capacity {
				return nil, fmt.Errorf("endowments[%d]: capacity %d below occupied capacity %d", i, out.Capacity, need)
			}
			cellbase.Outputs = append(cellbase.Outputs, out)
			caps = append(caps, out.Capacity)
			index++
		}
	}
	if len(cellbase.Outputs) == 1 {
		return nil, ErrEmptyGenesis
	}
	if _, err := types.SumCapacity(caps...); err != nil {
		return nil, fmt.Errorf("genesis endowments: %w", err)
	}

	cellbaseHash := cellbase.Hash()
	s := newChainState(params, ScriptAnchor{
		Dep: types.CellDep{
			OutPoint: types.CellReference{TxHash: cellbaseHash, Index: 0},
			DepType:  types.DepTypeCode,
		},
		Output:   anchorOut,
		DataHash: dataHash,
		TypeHash: anchorType.Hash(),
	})

	genesis := types.Header{
		Height:        0,
		Timestamp:     cfg.Timestamp,
		CompactTarget: cfg.CompactTarget,
		TxHashes:      []types.Hash{cellbaseHash},
	}
	genesis.Hash = genesis.ComputeHash()
	s.appendHeader(genesis)

	for i := 1; i < len(cellbase.Outputs); i++ {
		s.addLive(
			types.CellReference{TxHash: cellbaseHash, Index: uint32(i)},
			LiveCell{Output: cellbase.Outputs[i], CreatedAt: 0},
		)
	}
	return s, nil
}

func endowmentData(index uint32, size uint32) []byte {
	if size == 0 {
		return nil
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(index) ^ byte(i)
	}
	return data
}
