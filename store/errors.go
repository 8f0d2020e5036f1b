package store

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ErrStore wraps every error returned by a Store operation.
type ErrStore struct {
	Op  string
	Err error
}

func (e ErrStore) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e ErrStore) Unwrap() error {
	return e.Err
}

// ErrStoreVersion is returned when a data directory was written by an
// incompatible version.
type ErrStoreVersion struct {
	Got  uint64
	Want uint64
}

func (e ErrStoreVersion) Error() string {
	return fmt.Sprintf("data directory has store version %d, this binary uses %d", e.Got, e.Want)
}

// ErrCorrupted is returned when a record cannot be decoded or the records
// disagree with each other.
type ErrCorrupted struct {
	Record string
	Err    error
}

func (e ErrCorrupted) Error() string {
	return fmt.Sprintf("corrupted %s record: %v", e.Record, e.Err)
}

func (e ErrCorrupted) Unwrap() error {
	return e.Err
}

type ErrDBOpt struct {
	Err error
}

func (e ErrDBOpt) Error() string {
	return e.Err.Error()
}

func (e ErrDBOpt) Unwrap() error {
	return e.Err
}
