package types

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cellfuzz/txpoolfuzz/libs/wire"
)

// OutcomeKind is the top-level result of one submission.
type OutcomeKind uint8

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeRejected
	OutcomeEngineFault
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeEngineFault:
		return "engine_fault"
	}
	return fmt.Sprintf("outcome(%d)", uint8(k))
}

// RejectReason classifies a rejection. The set is closed; anything the
// engine reports that does not map onto it is ReasonUnclassified.
type RejectReason uint8

const (
	ReasonNone RejectReason = iota
	ReasonUnclassified
	ReasonMalformed
	ReasonDuplicate
	ReasonDoubleSpend
	ReasonUnknownInput
	ReasonUnknownDependency
	ReasonInsufficientCapacity
	ReasonCapacityOverflow
	ReasonImmature
	ReasonScript
	ReasonCycleLimit
	ReasonOversized
	ReasonWitness
	ReasonLowFee
	ReasonPoolFull

	numRejectReasons
)

var rejectReasonNames = [...]string{
	ReasonNone:                 "none",
	ReasonUnclassified:         "unclassified",
	ReasonMalformed:            "malformed",
	ReasonDuplicate:            "duplicate",
	ReasonDoubleSpend:          "double_spend",
	ReasonUnknownInput:         "unknown_input",
	ReasonUnknownDependency:    "unknown_dependency",
	ReasonInsufficientCapacity: "insufficient_capacity",
	ReasonCapacityOverflow:     "capacity_overflow",
	ReasonImmature:             "immature",
	ReasonScript:               "script",
	ReasonCycleLimit:           "cycle_limit",
	ReasonOversized:            "oversized",
	ReasonWitness:              "witness",
	ReasonLowFee:               "low_fee",
	ReasonPoolFull:             "pool_full",
}

func (r RejectReason) String() string {
	if r < numRejectReasons {
		return rejectReasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// IsResolveFailure reports whether the reason stems from resolving inputs or
// deps against the chain, which does not change when witnesses change.
func (r RejectReason) IsResolveFailure() bool {
	switch r {
	case ReasonDoubleSpend, ReasonUnknownInput, ReasonUnknownDependency:
		return true
	}
	return false
}

// FaultKind classifies an engine fault: the engine did not answer with
// accept or reject.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultPanic
	FaultTimeout
	FaultResourceLimit
	FaultUnexpected
)

func (f FaultKind) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultPanic:
		return "panic"
	case FaultTimeout:
		return "timeout"
	case FaultResourceLimit:
		return "resource_limit"
	case FaultUnexpected:
		return "unexpected"
	}
	return fmt.Sprintf("fault(%d)", uint8(f))
}

// Outcome is the classified result of submitting one transaction.
type Outcome struct {
	Kind   OutcomeKind
	Reason RejectReason
	Fault  FaultKind
	Detail string
}

func Accepted() Outcome {
	return Outcome{Kind: OutcomeAccepted}
}

func Rejected(reason RejectReason, detail string) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason, Detail: detail}
}

func EngineFault(kind FaultKind, detail string) Outcome {
	return Outcome{Kind: OutcomeEngineFault, Fault: kind, Detail: detail}
}

func (o Outcome) IsAccepted() bool { return o.Kind == OutcomeAccepted }

// Label is a compact form used for metrics and reports, e.g.
// "rejected/double_spend".
func (o Outcome) Label() string {
	switch o.Kind {
	case OutcomeRejected:
		return o.Kind.String() + "/" + o.Reason.String()
	case OutcomeEngineFault:
		return o.Kind.String() + "/" + o.Fault.String()
	}
	return o.Kind.String()
}

func (o Outcome) String() string {
	if o.Detail == "" {
		return o.Label()
	}
	return o.Label() + ": " + o.Detail
}

func (o Outcome) Marshal() []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(o.Kind))
	b = wire.AppendVarint(b, 2, uint64(o.Reason))
	b = wire.AppendVarint(b, 3, uint64(o.Fault))
	return wire.AppendBytes(b, 4, []byte(o.Detail))
}

func (o *Outcome) Unmarshal(b []byte) error {
	*o = Outcome{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var (
			v   uint8
			raw []byte
		)
		switch num {
		case 1:
			v, n, err = wire.ConsumeUint8(num, typ, b)
			o.Kind = OutcomeKind(v)
		case 2:
			v, n, err = wire.ConsumeUint8(num, typ, b)
			o.Reason = RejectReason(v)
		case 3:
			v, n, err = wire.ConsumeUint8(num, typ, b)
			o.Fault = FaultKind(v)
		case 4:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			o.Detail = string(raw)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "outcome", Err: err}
	}
	return nil
}

// ReasonSet is a small set of reject reasons.
type ReasonSet uint32

func NewReasonSet(reasons ...RejectReason) ReasonSet {
	var s ReasonSet
	for _, r := range reasons {
		s |= 1 << r
	}
	return s
}

func (s ReasonSet) Has(r RejectReason) bool {
	return r < numRejectReasons && s&(1<<r) != 0
}

func (s ReasonSet) IsEmpty() bool { return s == 0 }

func (s ReasonSet) String() string {
	var names []string
	for r := RejectReason(0); r < numRejectReasons; r++ {
		if s.Has(r) {
			names = append(names, r.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}
