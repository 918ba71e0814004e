package core

// Tick is a reading of the wrapping 32-bit system clock.
type Tick = uint32

// Ticks is a duration measured in clock ticks.
type Ticks = uint32

// MaxDelta is the largest distance between two ticks that LT and GE can
// order correctly.
const MaxDelta Ticks = 0x7fffffff

// DefaultTickRate matches the CLOCK_SECOND of the reference configuration.
const DefaultTickRate TickRate = 1000

// LT reports whether a is strictly before b, across counter wraparound.
func LT(a, b Tick) bool {
	return int32(a-b) < 0
}

// GE reports whether a is at or after b, across counter wraparound.
func GE(a, b Tick) bool {
	return int32(a-b) >= 0
}

// Clock is the platform clock driver.
type Clock interface {
	// Now returns the current tick.
	Now() Tick

	// ProgramNextWake tells the platform when the next timer is due, so it
	// can sleep until then.
	ProgramNextWake(next Tick)
}

// TickRate is the number of clock ticks per second.
//
// The conversions round to nearest and do not check their input ranges;
// values outside the documented ranges are undefined.
type TickRate uint32

// Ms converts milliseconds to ticks. Range 0..500000ms.
func (r TickRate) Ms(ms uint32) Ticks {
	return Ticks((uint64(ms)*uint64(r) + 1000/2) / 1000)
}

// MsF converts fractional milliseconds to ticks.
func (r TickRate) MsF(ms float64) Ticks {
	return Ticks(ms*float64(r)/1000.0 + 0.5)
}

// Sec converts seconds to ticks. Range 0..500000s.
func (r TickRate) Sec(s uint32) Ticks {
	return Ticks(s * uint32(r))
}

// Min converts minutes to ticks. Range 0..8500min.
func (r TickRate) Min(m uint32) Ticks {
	return Ticks(60 * m * uint32(r))
}

// ToMs converts ticks to milliseconds. Beware of overflow after ~4 million
// ticks at 1kHz.
func (r TickRate) ToMs(t Ticks) uint32 {
	return (t*1000 + uint32(r)/2) / uint32(r)
}

// ManualClock is a Clock whose time only moves when told to. Used by tests
// and by the host simulator.
type ManualClock struct {
	now      Tick
	nextWake Tick
	programs int
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start Tick) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() Tick { return c.now }

func (c *ManualClock) ProgramNextWake(next Tick) {
	c.nextWake = next
	c.programs++
}

// Set moves the clock to t.
func (c *ManualClock) Set(t Tick) { c.now = t }

// Advance moves the clock forward by d ticks, wrapping.
func (c *ManualClock) Advance(d Ticks) { c.now += d }

// NextWake returns the last programmed wake tick.
func (c *ManualClock) NextWake() Tick { return c.nextWake }

// Programs returns how many times the wake tick was programmed.
func (c *ManualClock) Programs() int { return c.programs }

// SystemClock reads the firmware tick counter maintained with SetTime. The
// wake callback, if set, receives every programmed deadline.
type SystemClock struct {
	OnProgram func(next Tick)
}

func (c *SystemClock) Now() Tick { return GetTime() }

func (c *SystemClock) ProgramNextWake(next Tick) {
	if c.OnProgram != nil {
		c.OnProgram(next)
	}
}

// GetTime returns the current system tick.
func GetTime() Tick {
	return getSystemTicks()
}

// SetTime sets the current system tick (from a hardware timer read, or a
// test).
func SetTime(ticks Tick) {
	setSystemTicks(ticks)
}
