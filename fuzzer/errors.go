package fuzzer

import (
	"fmt"

	"github.com/cellfuzz/txpoolfuzz/types"
)

// ErrDataDirExists is returned by Init when the data directory is already
// there.
type ErrDataDirExists struct {
	Dir string
}

func (e ErrDataDirExists) Error() string {
	return fmt.Sprintf("data directory %q already exists", e.Dir)
}

// ErrNotInitialized is returned by Load when the data directory holds no
// database.
type ErrNotInitialized struct {
	Dir string
}

func (e ErrNotInitialized) Error() string {
	return fmt.Sprintf("data directory %q is not initialized; run init first", e.Dir)
}

// ErrWrongState is returned when a driver method is called in a lifecycle
// state that does not allow it.
type ErrWrongState struct {
	Op    string
	State State
}

func (e ErrWrongState) Error() string {
	return fmt.Sprintf("can't %s a driver that is %v", e.Op, e.State)
}

// ErrFinding is returned by Run when the halting policy stopped the run.
// The run was persisted before it returned.
type ErrFinding struct {
	Height uint64
	Seq    uint64
	TxHash types.Hash
	Cause  string
}

func (e ErrFinding) Error() string {
	if e.TxHash.IsZero() {
		return fmt.Sprintf("halted at height %d: %s", e.Height, e.Cause)
	}
	return fmt.Sprintf("halted at height %d on tx %v (outcome #%d): %s", e.Height, e.TxHash, e.Seq, e.Cause)
}
