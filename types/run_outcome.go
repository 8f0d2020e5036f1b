package types

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cellfuzz/txpoolfuzz/libs/wire"
)

// RunOutcome is one entry of the append-only outcome log.
type RunOutcome struct {
	Seq          uint64
	RunID        string
	Iteration    uint64
	StateVersion uint64
	Height       uint64
	Timestamp    uint64
	TxHash       Hash
	Strategy     string
	Outcome      Outcome
	Violations   []Violation
	// RawTx is the full encoding of the submitted transaction, kept so a
	// finding can be replayed against an engine outside the harness.
	RawTx []byte
}

func (r *RunOutcome) Marshal() []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, r.Seq)
	b = wire.AppendBytes(b, 2, []byte(r.RunID))
	b = wire.AppendVarint(b, 3, r.Iteration)
	b = wire.AppendVarint(b, 4, r.StateVersion)
	b = wire.AppendVarint(b, 5, r.Height)
	b = wire.AppendVarint(b, 6, r.Timestamp)
	b = wire.AppendBytes(b, 7, r.TxHash[:])
	b = wire.AppendBytes(b, 8, []byte(r.Strategy))
	b = wire.AppendBytes(b, 9, r.Outcome.Marshal())
	for _, v := range r.Violations {
		b = wire.AppendBytes(b, 10, v.Marshal())
	}
	return wire.AppendBytes(b, 11, r.RawTx)
}

func (r *RunOutcome) Unmarshal(b []byte) error {
	*r = RunOutcome{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var raw []byte
		switch num {
		case 1:
			r.Seq, n, err = wire.ConsumeVarint(num, typ, b)
		case 2:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			r.RunID = string(raw)
		case 3:
			r.Iteration, n, err = wire.ConsumeVarint(num, typ, b)
		case 4:
			r.StateVersion, n, err = wire.ConsumeVarint(num, typ, b)
		case 5:
			r.Height, n, err = wire.ConsumeVarint(num, typ, b)
		case 6:
			r.Timestamp, n, err = wire.ConsumeVarint(num, typ, b)
		case 7:
			r.TxHash, n, err = consumeHash(num, typ, b)
		case 8:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			r.Strategy = string(raw)
		case 9:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				err = r.Outcome.Unmarshal(raw)
			}
		case 10:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			if err == nil {
				var v Violation
				err = v.Unmarshal(raw)
				r.Violations = append(r.Violations, v)
			}
		case 11:
			r.RawTx, n, err = wire.ConsumeBytes(num, typ, b)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "run outcome", Err: err}
	}
	return nil
}

// HasFinding reports whether the entry recorded any finding-severity
// violation.
func (r *RunOutcome) HasFinding() bool {
	return HasFinding(r.Violations)
}
