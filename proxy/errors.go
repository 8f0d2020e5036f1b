package proxy

import (
	"fmt"
)

// ErrEnginePanic is produced when the engine panics during a call.
type ErrEnginePanic struct {
	Method string
	Value  any
	Stack  []byte
}

func (e ErrEnginePanic) Error() string {
	return fmt.Sprintf("engine panicked in %s: %v", e.Method, e.Value)
}

// ErrEngineTimeout is produced when a call exceeds its deadline.
type ErrEngineTimeout struct {
	Method string
	Err    error
}

func (e ErrEngineTimeout) Error() string {
	return fmt.Sprintf("engine %s did not answer in time: %v", e.Method, e.Err)
}

func (e ErrEngineTimeout) Unwrap() error {
	return e.Err
}
