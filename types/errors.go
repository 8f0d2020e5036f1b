package types

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityOverflow = errors.New("capacity overflow")
	ErrInvalidSince     = errors.New("invalid since encoding")
)

// ErrDecode is returned when a binary record cannot be decoded.
type ErrDecode struct {
	Record string
	Err    error
}

func (e ErrDecode) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Record, e.Err)
}

func (e ErrDecode) Unwrap() error {
	return e.Err
}
