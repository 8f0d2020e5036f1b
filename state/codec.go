package state

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cellfuzz/txpoolfuzz/libs/wire"
	"github.com/cellfuzz/txpoolfuzz/types"
)

// MarshalRecord encodes the state without its headers. Headers are
// append-only and persisted one by one by the store.
func (s *ChainState) MarshalRecord() []byte {
	var b []byte
	b = wire.AppendBytes(b, 1, marshalParams(s.Params))
	b = wire.AppendBytes(b, 2, marshalAnchor(s.Anchor))
	b = wire.AppendVarint(b, 3, s.Version)
	for _, ref := range s.liveOrder {
		b = wire.AppendBytes(b, 4, marshalLive(ref, s.live[ref].cell))
	}
	for i := 0; i < s.DeadCount(); i++ {
		ref, d := s.DeadAt(i)
		b = wire.AppendBytes(b, 5, marshalDead(ref, d))
	}
	for _, h := range s.pending {
		b = wire.AppendBytes(b, 6, h[:])
	}
	b = wire.AppendVarint(b, 7, uint64(s.maxDead))
	return wire.AppendVarint(b, 8, s.Height())
}

// RestoreChainState rebuilds a state from MarshalRecord output and the
// sealed headers, ordered by height. The result is checked for consistency.
func RestoreChainState(record []byte, headers []types.Header) (*ChainState, error) {
	s := newChainState(types.ConsensusParams{}, ScriptAnchor{})
	var tipHeight uint64
	err := wire.Walk(record, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var (
			raw []byte
			v   uint64
		)
		switch num {
		case 1:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				s.Params, err = unmarshalParams(raw)
			}
		case 2:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				s.Anchor, err = unmarshalAnchor(raw)
			}
		case 3:
			s.Version, n, err = wire.ConsumeVarint(num, typ, b)
		case 4:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				var (
					ref  types.CellReference
					cell LiveCell
				)
				ref, cell, err = unmarshalLive(raw)
				if err == nil {
					if _, dup := s.live[ref]; dup {
						return 0, fmt.Errorf("live cell %v listed twice", ref)
					}
					s.addLive(ref, cell)
				}
			}
		case 5:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				var (
					ref types.CellReference
					d   DeadCell
				)
				ref, d, err = unmarshalDead(raw)
				if err == nil {
					if _, dup := s.dead[ref]; dup {
						return 0, fmt.Errorf("dead cell %v listed twice", ref)
					}
					s.dead[ref] = d
					s.deadOrder = append(s.deadOrder, ref)
				}
			}
		case 6:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				var h types.Hash
				h, err = types.HashFromBytes(raw)
				s.pending = append(s.pending, h)
			}
		case 7:
			v, n, err = wire.ConsumeVarint(num, typ, b)
			s.maxDead = int(v)
		case 8:
			tipHeight, n, err = wire.ConsumeVarint(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	if len(headers) == 0 {
		return nil, ErrNoHeaders
	}
	if got := headers[len(headers)-1].Height; got != tipHeight {
		return nil, fmt.Errorf("%w: record is at height %d, headers end at %d", ErrCorruptedState, tipHeight, got)
	}
	for _, h := range headers {
		s.appendHeader(h)
	}
	if err := s.CheckConsistency(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedState, err)
	}
	return s, nil
}

func marshalParams(p types.ConsensusParams) []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, p.MaxBlockBytes)
	b = wire.AppendVarint(b, 2, p.MaxTxBytes)
	b = wire.AppendVarint(b, 3, p.MaxBlockCycles)
	b = wire.AppendVarint(b, 4, p.MaxTxCycles)
	b = wire.AppendVarint(b, 5, p.EpochLength)
	b = wire.AppendVarint(b, 6, p.ByteCapacity)
	return wire.AppendVarint(b, 7, p.MinFeeRate)
}

func unmarshalParams(raw []byte) (p types.ConsensusParams, err error) {
	fields := []*uint64{
		&p.MaxBlockBytes, &p.MaxTxBytes, &p.MaxBlockCycles, &p.MaxTxCycles,
		&p.EpochLength, &p.ByteCapacity, &p.MinFeeRate,
	}
	err = wire.Walk(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num < 1 || int(num) > len(fields) {
			return 0, wire.ErrUnknownField{Num: num}
		}
		v, n, err := wire.ConsumeVarint(num, typ, b)
		*fields[num-1] = v
		return n, err
	})
	return p, err
}

func marshalAnchor(a ScriptAnchor) []byte {
	var b []byte
	b = wire.AppendBytes(b, 1, a.Dep.Marshal())
	b = wire.AppendBytes(b, 2, a.Output.Marshal())
	b = wire.AppendBytes(b, 3, a.DataHash[:])
	return wire.AppendBytes(b, 4, a.TypeHash[:])
}

func unmarshalAnchor(raw []byte) (a ScriptAnchor, err error) {
	err = wire.Walk(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		v, n, err := wire.ConsumeBytes(num, typ, b)
		if err != nil {
			return 0, err
		}
		switch num {
		case 1:
			err = a.Dep.Unmarshal(v)
		case 2:
			err = a.Output.Unmarshal(v)
		case 3:
			a.DataHash, err = types.HashFromBytes(v)
		case 4:
			a.TypeHash, err = types.HashFromBytes(v)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	return a, err
}

func marshalLive(ref types.CellReference, c LiveCell) []byte {
	var b []byte
	b = wire.AppendBytes(b, 1, ref.Marshal())
	b = wire.AppendBytes(b, 2, c.Output.Marshal())
	return wire.AppendVarint(b, 3, c.CreatedAt)
}

func unmarshalLive(raw []byte) (ref types.CellReference, c LiveCell, err error) {
	err = wire.Walk(raw, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var v []byte
		switch num {
		case 1:
			v, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				err = ref.Unmarshal(v)
			}
		case 2:
			v, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				err = c.Output.Unmarshal(v)
			}
		case 3:
			c.CreatedAt, n, err = wire.ConsumeVarint(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	return ref, c, err
}

func marshalDead(ref types.CellReference, d DeadCell) []byte {
	var b []byte
	b = wire.AppendBytes(b, 1, ref.Marshal())
	b = wire.AppendBytes(b, 2, d.ConsumedBy[:])
	return wire.AppendVarint(b, 3, d.Height)
}

func unmarshalDead(raw []byte) (ref types.CellReference, d DeadCell, err error) {
	err = wire.Walk(raw, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var v []byte
		switch num {
		case 1:
			v, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				err = ref.Unmarshal(v)
			}
		case 2:
			v, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				d.ConsumedBy, err = types.HashFromBytes(v)
			}
		case 3:
			d.Height, n, err = wire.ConsumeVarint(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	return ref, d, err
}
