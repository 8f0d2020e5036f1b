package types

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cellfuzz/txpoolfuzz/libs/wire"
)

// Records are encoded with the protobuf wire format, written by hand so the
// layout is canonical. Equal values encode to equal bytes, which the hashes
// depend on.

func consumeHash(num protowire.Number, typ protowire.Type, b []byte) (Hash, int, error) {
	v, n, err := wire.ConsumeBytes(num, typ, b)
	if err != nil {
		return Hash{}, 0, err
	}
	h, err := HashFromBytes(v)
	return h, n, err
}

// Marshal encodes the script canonically.
func (s Script) Marshal() []byte {
	b := make([]byte, 0, HashSize+len(s.Args)+8)
	b = wire.AppendBytes(b, 1, s.CodeHash[:])
	b = wire.AppendVarint(b, 2, uint64(s.HashType))
	return wire.AppendBytes(b, 3, s.Args)
}

func (s *Script) Unmarshal(b []byte) error {
	*s = Script{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var v uint8
		switch num {
		case 1:
			s.CodeHash, n, err = consumeHash(num, typ, b)
		case 2:
			v, n, err = wire.ConsumeUint8(num, typ, b)
			s.HashType = ScriptHashType(v)
		case 3:
			s.Args, n, err = wire.ConsumeBytes(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "script", Err: err}
	}
	return nil
}

func (r CellReference) Marshal() []byte {
	b := make([]byte, 0, HashSize+8)
	b = wire.AppendBytes(b, 1, r.TxHash[:])
	return wire.AppendVarint(b, 2, uint64(r.Index))
}

func (r *CellReference) Unmarshal(b []byte) error {
	*r = CellReference{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			r.TxHash, n, err = consumeHash(num, typ, b)
		case 2:
			r.Index, n, err = wire.ConsumeUint32(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "cell reference", Err: err}
	}
	return nil
}

func (o CellOutput) Marshal() []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, o.Capacity)
	b = wire.AppendBytes(b, 2, o.Lock.Marshal())
	if o.Type != nil {
		b = wire.AppendBytes(b, 3, o.Type.Marshal())
	}
	return wire.AppendBytes(b, 4, o.Data)
}

func (o *CellOutput) Unmarshal(b []byte) error {
	*o = CellOutput{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var raw []byte
		switch num {
		case 1:
			o.Capacity, n, err = wire.ConsumeVarint(num, typ, b)
		case 2:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				err = o.Lock.Unmarshal(raw)
			}
		case 3:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				o.Type = new(Script)
				err = o.Type.Unmarshal(raw)
			}
		case 4:
			o.Data, n, err = wire.ConsumeBytes(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "cell output", Err: err}
	}
	return nil
}

func (in CellInput) Marshal() []byte {
	var b []byte
	b = wire.AppendBytes(b, 1, in.Previous.Marshal())
	return wire.AppendFixed64(b, 2, in.Since)
}

func (in *CellInput) Unmarshal(b []byte) error {
	*in = CellInput{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var raw []byte
		switch num {
		case 1:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				err = in.Previous.Unmarshal(raw)
			}
		case 2:
			in.Since, n, err = wire.ConsumeFixed64(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "cell input", Err: err}
	}
	return nil
}

func (d CellDep) Marshal() []byte {
	var b []byte
	b = wire.AppendBytes(b, 1, d.OutPoint.Marshal())
	return wire.AppendVarint(b, 2, uint64(d.DepType))
}

func (d *CellDep) Unmarshal(b []byte) error {
	*d = CellDep{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var (
			raw []byte
			v   uint8
		)
		switch num {
		case 1:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				err = d.OutPoint.Unmarshal(raw)
			}
		case 2:
			v, n, err = wire.ConsumeUint8(num, typ, b)
			d.DepType = DepType(v)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "cell dep", Err: err}
	}
	return nil
}
