package time

import (
	"fmt"
	"time"
)

// Canonical returns UTC time with no monotonic component.
// Stripping the monotonic component is for time equality.
func Canonical(t time.Time) time.Time {
	return t.Round(0).UTC()
}

// Source is an interface that defines a way to fetch the current time.
type Source interface {
	Now() time.Time
}

// VirtualClock is a Source that only moves when told to. Fuzz runs read time
// exclusively from it so that a replay observes the same timestamps.
//
// The zero value starts at the Unix epoch.
type VirtualClock struct {
	ms uint64
}

var _ Source = (*VirtualClock)(nil)

// NewVirtualClock returns a clock positioned at ms milliseconds since the
// Unix epoch.
func NewVirtualClock(ms uint64) *VirtualClock {
	return &VirtualClock{ms: ms}
}

// Now implements Source.
func (c *VirtualClock) Now() time.Time {
	return Canonical(time.UnixMilli(int64(c.ms)))
}

// UnixMilli returns the current virtual time in milliseconds.
func (c *VirtualClock) UnixMilli() uint64 {
	return c.ms
}

// Advance moves the clock forward. Negative durations are rejected: the
// virtual clock never goes backwards.
func (c *VirtualClock) Advance(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("cannot move virtual clock backwards by %v", d)
	}
	c.ms += uint64(d.Milliseconds())
	return nil
}
