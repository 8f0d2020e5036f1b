package types

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cellfuzz/txpoolfuzz/libs/wire"
)

// ViolationKind names the invariant that failed.
type ViolationKind uint8

const (
	ViolationCapacityConservation ViolationKind = iota + 1
	ViolationDoubleAccept
	ViolationLiveSetConsistency
	ViolationImplausibleAcceptance
	ViolationUnexpectedRejection
	ViolationReasonMismatch
	ViolationApplyFailure
	ViolationEngineDivergence
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationCapacityConservation:
		return "capacity_conservation"
	case ViolationDoubleAccept:
		return "double_accept"
	case ViolationLiveSetConsistency:
		return "live_set_consistency"
	case ViolationImplausibleAcceptance:
		return "implausible_acceptance"
	case ViolationUnexpectedRejection:
		return "unexpected_rejection"
	case ViolationReasonMismatch:
		return "reason_mismatch"
	case ViolationApplyFailure:
		return "apply_failure"
	case ViolationEngineDivergence:
		return "engine_divergence"
	}
	return fmt.Sprintf("violation(%d)", uint8(k))
}

// Severity separates findings, which may halt a run, from warnings.
type Severity uint8

const (
	SeverityFinding Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "finding"
}

// Violation is one failed invariant check.
type Violation struct {
	Kind     ViolationKind
	Severity Severity
	Detail   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s(%s): %s", v.Kind, v.Severity, v.Detail)
}

func (v Violation) Marshal() []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(v.Kind))
	b = wire.AppendVarint(b, 2, uint64(v.Severity))
	return wire.AppendBytes(b, 3, []byte(v.Detail))
}

func (v *Violation) Unmarshal(b []byte) error {
	*v = Violation{}
	err := wire.Walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error) {
		var (
			u   uint8
			raw []byte
		)
		switch num {
		case 1:
			u, n, err = wire.ConsumeUint8(num, typ, b)
			v.Kind = ViolationKind(u)
		case 2:
			u, n, err = wire.ConsumeUint8(num, typ, b)
			v.Severity = Severity(u)
		case 3:
			raw, n, err = wire.ConsumeBytes(num, typ, b)
			v.Detail = string(raw)
		default:
			err = wire.ErrUnknownField{Num: num}
		}
		return n, err
	})
	if err != nil {
		return ErrDecode{Record: "violation", Err: err}
	}
	return nil
}

// HasFinding reports whether any violation is a finding.
func HasFinding(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityFinding {
			return true
		}
	}
	return false
}
