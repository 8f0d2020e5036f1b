package mempool

import (
	"errors"
	"fmt"

	"github.com/cellfuzz/txpoolfuzz/types"
)

// ErrUnknownBlockTx is returned by Update when a header lists a transaction
// the pool never admitted.
var ErrUnknownBlockTx = errors.New("block contains a transaction unknown to the pool")

// ErrResourceLimit is returned by engines that ran out of a resource while
// verifying a transaction. It is a fault, not a rejection.
var ErrResourceLimit = errors.New("engine resource limit reached")

// ErrRejected is returned by CheckTx when a transaction is invalid.
type ErrRejected struct {
	Reason types.RejectReason
	Err    error
}

func (e *ErrRejected) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rejected (%v)", e.Reason)
	}
	return fmt.Sprintf("rejected (%v): %v", e.Reason, e.Err)
}

func (e *ErrRejected) Unwrap() error {
	return e.Err
}

func reject(reason types.RejectReason, format string, args ...any) *ErrRejected {
	return &ErrRejected{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// ErrHeaderMismatch is returned by Update when a header does not extend the
// pool's tip.
type ErrHeaderMismatch struct {
	Tip    types.Header
	Header types.Header
}

func (e ErrHeaderMismatch) Error() string {
	return fmt.Sprintf("header %v does not extend tip %v", &e.Header, &e.Tip)
}
