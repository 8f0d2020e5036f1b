package types

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cellfuzz/txpoolfuzz/libs/wire"
)

// SeedState is the persisted position of the seeded random stream and the
// virtual clock.
type SeedState struct {
	Seed   uint64
	Source []byte // marshaled generator state
	Draws  uint64
	Clock  uint64 // virtual milliseconds since the Unix epoch
}

func (s *SeedState) Marshal() []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, s.Seed)
	b = wire.AppendBytes(b, 2, s.Source)
	b = wire.AppendVarint(b, 3, s.Draws)
	return wire.AppendVarint(b, 4, s.Clock)
}

func (s *SeedState) Unmarshal(b []byte) error {
	*s = SeedState{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		switch num {
		case 1:
			s.Seed, n, err = wire.ConsumeVarint(num, typ, b)
		case 2:
			s.Source, n, err = wire.ConsumeBytes(num, typ, b)
		case 3:
			s.Draws, n, err = wire.ConsumeVarint(num, typ, b)
		case 4:
			s.Clock, n, err = wire.ConsumeVarint(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "seed state", Err: err}
	}
	return nil
}
