package types

import "fmt"

// Since constraints follow the CKB layout:
//
//	bit 63       relative flag
//	bits 61..62  metric: 00 block number, 01 epoch, 10 timestamp (seconds)
//	bits 56..60  reserved, must be zero
//	bits 0..55   value
const (
	sinceRelativeFlag = uint64(1) << 63
	sinceMetricShift  = 61
	sinceMetricMask   = uint64(0b11) << sinceMetricShift
	sinceReservedMask = uint64(0b11111) << 56
	sinceValueMask    = (uint64(1) << 56) - 1
)

// SinceMetric is the unit of a since value.
type SinceMetric uint8

const (
	SinceBlockNumber SinceMetric = iota
	SinceEpoch
	SinceTimestamp
)

func (m SinceMetric) String() string {
	switch m {
	case SinceBlockNumber:
		return "block_number"
	case SinceEpoch:
		return "epoch"
	case SinceTimestamp:
		return "timestamp"
	}
	return fmt.Sprintf("metric(%d)", uint8(m))
}

// Since is a decoded since field.
type Since struct {
	Relative bool
	Metric   SinceMetric
	Value    uint64
}

// ParseSince decodes raw. Zero means "no constraint" and decodes to an
// absolute block number 0, which every chain satisfies.
func ParseSince(raw uint64) (Since, error) {
	if raw&sinceReservedMask != 0 {
		return Since{}, fmt.Errorf("%w: reserved bits set in %#x", ErrInvalidSince, raw)
	}
	metric := SinceMetric((raw & sinceMetricMask) >> sinceMetricShift)
	if metric > SinceTimestamp {
		return Since{}, fmt.Errorf("%w: unknown metric in %#x", ErrInvalidSince, raw)
	}
	return Since{
		Relative: raw&sinceRelativeFlag != 0,
		Metric:   metric,
		Value:    raw & sinceValueMask,
	}, nil
}

// Encode is the inverse of ParseSince. Value is truncated to 56 bits.
func (s Since) Encode() uint64 {
	raw := uint64(s.Metric)<<sinceMetricShift | s.Value&sinceValueMask
	if s.Relative {
		raw |= sinceRelativeFlag
	}
	return raw
}
