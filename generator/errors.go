package generator

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrNoLiveCells means the batch has nothing left to spend.
	ErrNoLiveCells = errors.New("no spendable cells")
	// ErrInputsTooSmall means the sampled inputs cannot pay for the outputs'
	// occupied capacity and the minimum fee.
	ErrInputsTooSmall = errors.New("inputs cannot cover outputs and fee")
)

// ErrGeneration is returned when no candidate could be produced. The driver
// logs it and moves on.
type ErrGeneration struct {
	Strategy Strategy
	Err      error
}

func (e ErrGeneration) Error() string {
	return fmt.Sprintf("generating %s candidate: %v", e.Strategy, e.Err)
}

func (e ErrGeneration) Unwrap() error {
	return e.Err
}
