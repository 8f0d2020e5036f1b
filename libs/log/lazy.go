package log

import (
	"fmt"
)

type LazySprintf struct {
	format string
	args   []any
}

// NewLazySprintf defers fmt.Sprintf until the Stringer interface is invoked.
// This is particularly useful for avoiding calling Sprintf when debugging is not
// active.
func NewLazySprintf(format string, args ...any) *LazySprintf {
	return &LazySprintf{format, args}
}

func (l *LazySprintf) String() string {
	return fmt.Sprintf(l.format, l.args...)
}

// LazyHash is a wrapper around a hashable object that defers the Hash call
// until the Stringer interface is invoked.
type LazyHash[H fmt.Stringer] struct {
	inner hashable[H]
}

type hashable[H fmt.Stringer] interface {
	Hash() H
}

// NewLazyHash defers calling `Hash()` until the Stringer interface is invoked.
// The hash type cannot be inferred, so callers spell it out:
//
//	log.NewLazyHash[types.Hash](tx)
func NewLazyHash[H fmt.Stringer](inner hashable[H]) *LazyHash[H] {
	return &LazyHash[H]{inner}
}

func (l *LazyHash[H]) String() string {
	return l.inner.Hash().String()
}
