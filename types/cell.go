package types

import (
	"fmt"
	"math/bits"
)

// CellReference points at one output of one transaction.
type CellReference struct {
	TxHash Hash
	Index  uint32
}

// Compare orders references by transaction hash, then index.
func (r CellReference) Compare(o CellReference) int {
	if c := r.TxHash.Compare(o.TxHash); c != 0 {
		return c
	}
	switch {
	case r.Index < o.Index:
		return -1
	case r.Index > o.Index:
		return 1
	}
	return 0
}

func (r CellReference) String() string {
	return fmt.Sprintf("%s:%d", r.TxHash.Short(), r.Index)
}

// ScriptHashType selects how a script's CodeHash is matched against the
// transaction's cell deps.
type ScriptHashType uint8

const (
	// HashTypeData matches the hash of a dep cell's data.
	HashTypeData ScriptHashType = iota
	// HashTypeType matches the hash of a dep cell's type script.
	HashTypeType
)

func (t ScriptHashType) String() string {
	switch t {
	case HashTypeData:
		return "data"
	case HashTypeType:
		return "type"
	}
	return fmt.Sprintf("hash_type(%d)", uint8(t))
}

// Script is a lock or type script: a reference to code plus its arguments.
type Script struct {
	CodeHash Hash
	HashType ScriptHashType
	Args     []byte
}

// Hash identifies the script. Scripts with equal hashes form one
// verification group.
func (s Script) Hash() Hash {
	return Sum(s.Marshal())
}

// CellOutput is the content of a cell.
type CellOutput struct {
	Capacity uint64
	Lock     Script
	Type     *Script
	Data     []byte
}

// OccupiedBytes is the number of bytes a cell charges against its own
// capacity: the capacity field, the scripts and the data.
func (o CellOutput) OccupiedBytes() uint64 {
	n := uint64(8) + uint64(HashSize+1+len(o.Lock.Args))
	if o.Type != nil {
		n += uint64(HashSize + 1 + len(o.Type.Args))
	}
	return n + uint64(len(o.Data))
}

// OccupiedCapacity is OccupiedBytes priced at byteCapacity per byte.
func (o CellOutput) OccupiedCapacity(byteCapacity uint64) (uint64, error) {
	hi, lo := bits.Mul64(o.OccupiedBytes(), byteCapacity)
	if hi != 0 {
		return 0, ErrCapacityOverflow
	}
	return lo, nil
}

// CellInput consumes a live cell, optionally guarded by a since constraint.
type CellInput struct {
	Previous CellReference
	Since    uint64
}

// DepType tells how a cell dep is resolved.
type DepType uint8

const (
	// DepTypeCode makes the referenced cell's data available as code.
	DepTypeCode DepType = iota
)

// CellDep makes a cell readable by the transaction's scripts without
// consuming it.
type CellDep struct {
	OutPoint CellReference
	DepType  DepType
}

// SumCapacity adds capacities, reporting overflow.
func SumCapacity(caps ...uint64) (uint64, error) {
	var total uint64
	for _, c := range caps {
		var carry uint64
		total, carry = bits.Add64(total, c, 0)
		if carry != 0 {
			return 0, ErrCapacityOverflow
		}
	}
	return total, nil
}
