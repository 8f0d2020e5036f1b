package types

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MockVMCode is the content of the code cell deployed at genesis. The
// engine's script runner executes only cells carrying exactly this data; any
// other code fails verification.
var MockVMCode = []byte("txpoolfuzz/mock-vm/v1")

// Script args understood by the mock VM:
//
//	args[0:8]   exit code, little endian; 0 means success
//	args[8:16]  cycles consumed, little endian
//	args[16:]   free-form salt, makes otherwise equal scripts distinct
const MockArgsSize = 16

var (
	ErrMockArgsTooShort = errors.New("script args shorter than 16 bytes")
	ErrWitnessFraming   = errors.New("malformed witness framing")
)

// MockScriptArgs builds args for a script that exits with result after
// consuming cycles.
func MockScriptArgs(result, cycles uint64, salt []byte) []byte {
	args := make([]byte, MockArgsSize, MockArgsSize+len(salt))
	binary.LittleEndian.PutUint64(args[0:8], result)
	binary.LittleEndian.PutUint64(args[8:16], cycles)
	return append(args, salt...)
}

// ParseMockScriptArgs is the inverse of MockScriptArgs.
func ParseMockScriptArgs(args []byte) (result, cycles uint64, err error) {
	if len(args) < MockArgsSize {
		return 0, 0, fmt.Errorf("%w: got %d", ErrMockArgsTooShort, len(args))
	}
	return binary.LittleEndian.Uint64(args[0:8]), binary.LittleEndian.Uint64(args[8:16]), nil
}

// witnessHeaderSize is the length prefix of a framed witness.
const witnessHeaderSize = 4

// FrameWitness wraps payload in the framing lock scripts expect at the
// position of their group's first input.
func FrameWitness(payload []byte) []byte {
	w := make([]byte, witnessHeaderSize, witnessHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(w, uint32(len(payload)))
	return append(w, payload...)
}

// UnframeWitness returns the payload of a framed witness.
func UnframeWitness(w []byte) ([]byte, error) {
	if len(w) < witnessHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrWitnessFraming, len(w))
	}
	n := binary.LittleEndian.Uint32(w)
	if uint64(n) != uint64(len(w)-witnessHeaderSize) {
		return nil, fmt.Errorf("%w: header says %d, body has %d", ErrWitnessFraming, n, len(w)-witnessHeaderSize)
	}
	return w[witnessHeaderSize:], nil
}
