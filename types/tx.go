package types

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cellfuzz/txpoolfuzz/libs/wire"
)

// Transaction consumes input cells and creates output cells. A transaction
// is immutable once built: every mutation helper returns a copy.
type Transaction struct {
	Version    uint32
	CellDeps   []CellDep
	HeaderDeps []Hash
	Inputs     []CellInput
	Outputs    []CellOutput
	Witnesses  [][]byte
}

// Hash identifies the transaction. Witnesses are excluded, so two
// transactions that differ only in witnesses share a hash.
func (tx *Transaction) Hash() Hash {
	return Sum(tx.marshal(false))
}

// WitnessHash covers the whole transaction including witnesses.
func (tx *Transaction) WitnessHash() Hash {
	return Sum(tx.marshal(true))
}

// Size is the length of the full encoding in bytes.
func (tx *Transaction) Size() int {
	return len(tx.marshal(true))
}

// OutputReference returns the reference of the i-th output.
func (tx *Transaction) OutputReference(i int) CellReference {
	return CellReference{TxHash: tx.Hash(), Index: uint32(i)}
}

// OutputCapacity sums the output capacities.
func (tx *Transaction) OutputCapacity() (uint64, error) {
	caps := make([]uint64, len(tx.Outputs))
	for i, o := range tx.Outputs {
		caps[i] = o.Capacity
	}
	return SumCapacity(caps...)
}

// WithWitnesses returns a shallow copy with the witnesses replaced.
func (tx *Transaction) WithWitnesses(witnesses [][]byte) *Transaction {
	cp := *tx
	cp.Witnesses = witnesses
	return &cp
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("Tx{%s in=%d out=%d deps=%d wit=%d}",
		tx.Hash().Short(), len(tx.Inputs), len(tx.Outputs), len(tx.CellDeps), len(tx.Witnesses))
}

// Marshal returns the full canonical encoding.
func (tx *Transaction) Marshal() []byte {
	return tx.marshal(true)
}

func (tx *Transaction) marshal(withWitnesses bool) []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(tx.Version))
	for _, d := range tx.CellDeps {
		b = wire.AppendBytes(b, 2, d.Marshal())
	}
	for _, h := range tx.HeaderDeps {
		b = wire.AppendBytes(b, 3, h[:])
	}
	for _, in := range tx.Inputs {
		b = wire.AppendBytes(b, 4, in.Marshal())
	}
	for _, o := range tx.Outputs {
		b = wire.AppendBytes(b, 5, o.Marshal())
	}
	if withWitnesses {
		for _, w := range tx.Witnesses {
			b = wire.AppendBytes(b, 6, w)
		}
	}
	return b
}

// Unmarshal decodes a full encoding produced by Marshal.
func (tx *Transaction) Unmarshal(b []byte) error {
	*tx = Transaction{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var raw []byte
		if num != 1 {
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err != nil {
				return 0, err
			}
		}
		switch num {
		case 1:
			tx.Version, n, err = wire.ConsumeUint32(num, typ, b)
		case 2:
			var d CellDep
			err = d.Unmarshal(raw)
			tx.CellDeps = append(tx.CellDeps, d)
		case 3:
			var h Hash
			h, err = HashFromBytes(raw)
			tx.HeaderDeps = append(tx.HeaderDeps, h)
		case 4:
			var in CellInput
			err = in.Unmarshal(raw)
			tx.Inputs = append(tx.Inputs, in)
		case 5:
			var o CellOutput
			err = o.Unmarshal(raw)
			tx.Outputs = append(tx.Outputs, o)
		case 6:
			tx.Witnesses = append(tx.Witnesses, raw)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "transaction", Err: err}
	}
	return nil
}

// TransactionFromBytes decodes a transaction.
func TransactionFromBytes(b []byte) (*Transaction, error) {
	tx := new(Transaction)
	if err := tx.Unmarshal(b); err != nil {
		return nil, err
	}
	return tx, nil
}
