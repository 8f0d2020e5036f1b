package state

import (
	"errors"
	"fmt"

	"github.com/cellfuzz/txpoolfuzz/types"
)

var (
	ErrEmptyGenesis   = errors.New("genesis creates no cells")
	ErrUnknownHeader  = errors.New("unknown header")
	ErrNoHeaders      = errors.New("state has no headers")
	ErrCorruptedState = errors.New("chain state record is corrupted")
)

// ErrInvariantViolation is returned by Apply when a transaction cannot be
// applied to the live set. Nothing is mutated when it is returned.
type ErrInvariantViolation struct {
	TxHash types.Hash
	Ref    types.CellReference
	Reason string
}

func (e ErrInvariantViolation) Error() string {
	return fmt.Sprintf("cannot apply tx %v: %s (%v)", e.TxHash, e.Reason, e.Ref)
}

// ErrInconsistent is returned by CheckConsistency.
type ErrInconsistent struct {
	Detail string
}

func (e ErrInconsistent) Error() string {
	return "inconsistent chain state: " + e.Detail
}
