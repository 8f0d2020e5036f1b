package mempool

import (
	"context"

	"github.com/cellfuzz/txpoolfuzz/types"
)

// Engine is the pool/verification engine under test.
//
// CheckTx either admits the transaction into the pool (nil), rejects it
// (*ErrRejected) or fails in some other way. Any error that is not an
// *ErrRejected is outside the rejection vocabulary and treated as an engine
// fault by callers.
type Engine interface {
	// CheckTx verifies tx against the engine's view of the chain and, if it
	// is valid, admits it into the pool. The engine must not admit tx once
	// ctx is done.
	CheckTx(ctx context.Context, tx *types.Transaction) error

	// Update informs the engine that a block with the given header was
	// sealed. Every transaction listed in the header must have been admitted
	// before.
	Update(ctx context.Context, header types.Header) error

	// Size returns the number of admitted, uncommitted transactions.
	Size() int
}

// CellViewer is implemented by engines that expose their view of the live
// cell set.
type CellViewer interface {
	// LiveCell returns the output at ref if the engine considers it live,
	// including cells created by admitted but uncommitted transactions.
	LiveCell(ref types.CellReference) (types.CellOutput, bool)

	// LiveCount returns the number of cells the engine considers live.
	LiveCount() int
}
