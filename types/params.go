package types

import (
	"errors"
	"fmt"
)

const (
	// Shannons per CKB-style unit of capacity. Capacities in the data model
	// are expressed in shannons.
	ShannonsPerUnit uint64 = 100_000_000

	// MaxBlockSizeBytes is the upper bound accepted for MaxBlockBytes.
	MaxBlockSizeBytes = 100 * 1024 * 1024
)

// ConsensusParams are the chain rules the engine verifies against. They are
// fixed at genesis.
type ConsensusParams struct {
	MaxBlockBytes  uint64 `mapstructure:"max_block_bytes" yaml:"max_block_bytes"`
	MaxTxBytes     uint64 `mapstructure:"max_tx_bytes" yaml:"max_tx_bytes"`
	MaxBlockCycles uint64 `mapstructure:"max_block_cycles" yaml:"max_block_cycles"`
	MaxTxCycles    uint64 `mapstructure:"max_tx_cycles" yaml:"max_tx_cycles"`
	EpochLength    uint64 `mapstructure:"epoch_length" yaml:"epoch_length"`
	// ByteCapacity is the capacity each occupied byte of a cell costs, one
	// unit per byte by default. 0 disables the occupied-capacity rule.
	ByteCapacity uint64 `mapstructure:"byte_capacity" yaml:"byte_capacity"`
	// MinFeeRate is the minimum fee in shannons per 1000 bytes.
	MinFeeRate uint64 `mapstructure:"min_fee_rate" yaml:"min_fee_rate"`
}

// DefaultConsensusParams returns the parameters of a small mock chain.
func DefaultConsensusParams() ConsensusParams {
	return ConsensusParams{
		MaxBlockBytes:  597_000,
		MaxTxBytes:     512_000,
		MaxBlockCycles: 3_500_000_000,
		MaxTxCycles:    70_000_000,
		EpochLength:    1800,
		ByteCapacity:   ShannonsPerUnit,
		MinFeeRate:     1000,
	}
}

// ValidateBasic performs basic validation on the parameters.
func (p ConsensusParams) ValidateBasic() error {
	if p.MaxBlockBytes == 0 {
		return errors.New("max_block_bytes cannot be 0")
	}
	if p.MaxBlockBytes > MaxBlockSizeBytes {
		return fmt.Errorf("max_block_bytes is too big. %d > %d", p.MaxBlockBytes, MaxBlockSizeBytes)
	}
	if p.MaxTxBytes == 0 || p.MaxTxBytes > p.MaxBlockBytes {
		return fmt.Errorf("max_tx_bytes must be in (0, max_block_bytes]. Got %d", p.MaxTxBytes)
	}
	if p.MaxTxCycles == 0 || p.MaxTxCycles > p.MaxBlockCycles {
		return fmt.Errorf("max_tx_cycles must be in (0, max_block_cycles]. Got %d", p.MaxTxCycles)
	}
	if p.EpochLength == 0 {
		return errors.New("epoch_length cannot be 0")
	}
	return nil
}

// MinFee is the smallest fee a transaction of size bytes must pay.
func (p ConsensusParams) MinFee(size int) uint64 {
	return (uint64(size)*p.MinFeeRate + 999) / 1000
}
