//go:build !tinygo

package core

import "time"

var systemTicks uint32

// getSystemTicks returns the current system ticks (regular Go implementation)
func getSystemTicks() uint32 {
	return systemTicks
}

// setSystemTicks sets the system ticks (regular Go implementation)
func setSystemTicks(ticks uint32) {
	systemTicks = ticks
}

// HostClock derives ticks from the monotonic clock of the host, so the
// runtime can be exercised outside the target.
type HostClock struct {
	Rate  TickRate
	start time.Time
	wake  Tick
}

// NewHostClock returns a HostClock whose tick 0 is now.
func NewHostClock(rate TickRate) *HostClock {
	return &HostClock{Rate: rate, start: time.Now()}
}

func (c *HostClock) Now() Tick {
	elapsed := time.Since(c.start)
	return Tick(uint64(elapsed) * uint64(c.Rate) / uint64(time.Second))
}

func (c *HostClock) ProgramNextWake(next Tick) {
	c.wake = next
}

// UntilWake returns how long the host may sleep before the programmed wake
// tick is due. It is zero if the deadline has passed.
func (c *HostClock) UntilWake() time.Duration {
	now := c.Now()
	if GE(now, c.wake) {
		return 0
	}
	return time.Duration(uint64(c.wake-now) * uint64(time.Second) / uint64(c.Rate))
}
