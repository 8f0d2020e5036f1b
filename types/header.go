package types

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cellfuzz/txpoolfuzz/libs/wire"
)

// Header is a sealed block of the mock chain. Blocks carry no bodies: the
// transactions are referenced by hash only.
type Header struct {
	Height        uint64
	Hash          Hash
	ParentHash    Hash
	Timestamp     uint64 // milliseconds since the Unix epoch
	CompactTarget uint32
	Epoch         uint64
	TxHashes      []Hash
}

// ComputeHash hashes every field except Hash itself.
func (h *Header) ComputeHash() Hash {
	return Sum(h.marshal(false))
}

func (h *Header) String() string {
	return fmt.Sprintf("Header{#%d %s txs=%d}", h.Height, h.Hash.Short(), len(h.TxHashes))
}

func (h *Header) Marshal() []byte {
	return h.marshal(true)
}

func (h *Header) marshal(withHash bool) []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, h.Height)
	if withHash {
		b = wire.AppendBytes(b, 2, h.Hash[:])
	}
	b = wire.AppendBytes(b, 3, h.ParentHash[:])
	b = wire.AppendVarint(b, 4, h.Timestamp)
	b = wire.AppendVarint(b, 5, uint64(h.CompactTarget))
	b = wire.AppendVarint(b, 6, h.Epoch)
	for _, th := range h.TxHashes {
		b = wire.AppendBytes(b, 7, th[:])
	}
	return b
}

func (h *Header) Unmarshal(b []byte) error {
	*h = Header{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var th Hash
		switch num {
		case 1:
			h.Height, n, err = wire.ConsumeVarint(num, typ, b)
		case 2:
			h.Hash, n, err = consumeHash(num, typ, b)
		case 3:
			h.ParentHash, n, err = consumeHash(num, typ, b)
		case 4:
			h.Timestamp, n, err = wire.ConsumeVarint(num, typ, b)
		case 5:
			h.CompactTarget, n, err = wire.ConsumeUint32(num, typ, b)
		case 6:
			h.Epoch, n, err = wire.ConsumeVarint(num, typ, b)
		case 7:
			th, n, err = consumeHash(num, typ, b)
			h.TxHashes = append(h.TxHashes, th)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "header", Err: err}
	}
	return nil
}
