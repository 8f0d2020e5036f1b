// Package wire holds helpers for hand-written canonical protobuf encodings.
//
// Encoders always emit fields in ascending field order and always emit
// scalar fields, so equal values encode to equal bytes. Decoders are strict:
// unknown fields and mismatched wire types are errors.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrValueRange = errors.New("value out of range")

// ErrUnknownField is returned for a field number a record does not define.
type ErrUnknownField struct {
	Num protowire.Number
}

func (e ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field %d", e.Num)
}

// ErrWireType is returned when a known field carries the wrong wire type.
type ErrWireType struct {
	Num  protowire.Number
	Want protowire.Type
	Got  protowire.Type
}

func (e ErrWireType) Error() string {
	return fmt.Sprintf("field %d: want wire type %d, got %d", e.Num, e.Want, e.Got)
}

// FieldFunc decodes the value of one field and returns the number of bytes
// it consumed.
type FieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// Walk calls fn for every field of the message in b.
func Walk(b []byte, fn FieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func ConsumeVarint(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, ErrWireType{Num: num, Want: protowire.VarintType, Got: typ}
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func ConsumeUint8(num protowire.Number, typ protowire.Type, b []byte) (uint8, int, error) {
	v, n, err := ConsumeVarint(num, typ, b)
	if err == nil && v > math.MaxUint8 {
		err = ErrValueRange
	}
	return uint8(v), n, err
}

func ConsumeUint32(num protowire.Number, typ protowire.Type, b []byte) (uint32, int, error) {
	v, n, err := ConsumeVarint(num, typ, b)
	if err == nil && v > math.MaxUint32 {
		err = ErrValueRange
	}
	return uint32(v), n, err
}

func ConsumeBool(num protowire.Number, typ protowire.Type, b []byte) (bool, int, error) {
	v, n, err := ConsumeVarint(num, typ, b)
	if err == nil && v > 1 {
		err = ErrValueRange
	}
	return v == 1, n, err
}

func ConsumeFixed64(num protowire.Number, typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, ErrWireType{Num: num, Want: protowire.Fixed64Type, Got: typ}
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// ConsumeBytes returns a copy of the value, or nil when it is empty.
func ConsumeBytes(num protowire.Number, typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, ErrWireType{Num: num, Want: protowire.BytesType, Got: typ}
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	if len(v) == 0 {
		return nil, n, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	return AppendVarint(b, num, protowire.EncodeBool(v))
}

func AppendFixed64(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
