// Package sensors drives I2C sensors that share one bus from cooperative
// processes. The bus is guarded by a semaphore. A burst reader holds it
// across timer waits so its samples are not interleaved with other traffic.
package sensors

import "gotiki/core"

// Accelerometer is the part of an accelerometer driver the sampler uses,
// e.g. *adxl345.Device.
type Accelerometer interface {
	ReadRawAcceleration() (x, y, z int32)
}

// RangeFinder is the part of a distance sensor driver the ranger uses,
// e.g. *vl53l1x.Device.
type RangeFinder interface {
	Read(blocking bool) uint16
}

const (
	DefaultBurstSamples = 8
	DefaultBurstSpacing = 2   // ms between samples in a burst
	DefaultBurstPeriod  = 500 // ms between bursts
	DefaultRangePeriod  = 200 // ms between distance reads
)

// BurstSampler reads Samples accelerations Spacing apart while holding the
// bus, once per Period.
type BurstSampler struct {
	Queue   *core.TimerQueue
	Bus     *core.Semaphore
	Dev     Accelerometer
	Samples int
	Spacing core.Ticks
	Period  core.Ticks
	Log     *core.Logger

	// Bursts is the number of completed bursts and Average the mean of
	// the last one. Skipped counts periods that arrived while a burst was
	// still running or waiting for the bus.
	Bursts  int
	Skipped int
	Average [3]int32

	period, spacing core.ETimer
	ws              core.WaitState
	holding         bool
	paused          bool
	n               int
	sum             [3]int32
}

// NewBurstSampler returns a sampler with the default burst shape.
func NewBurstSampler(q *core.TimerQueue, bus *core.Semaphore, dev Accelerometer, rate core.TickRate, log *core.Logger) *BurstSampler {
	return &BurstSampler{
		Queue:   q,
		Bus:     bus,
		Dev:     dev,
		Samples: DefaultBurstSamples,
		Spacing: rate.Ms(DefaultBurstSpacing),
		Period:  rate.Ms(DefaultBurstPeriod),
		Log:     log,
	}
}

// Holding reports whether the sampler holds the bus.
func (s *BurstSampler) Holding() bool { return s.holding }

// Step implements core.Thread.
func (s *BurstSampler) Step(_ core.ProcessID, ev core.Event, data any) core.Status {
	if s.paused && ev == core.EventSemSignal && data == s.Bus {
		// resumed after handing the bus over
		s.paused = false
		return core.StatusWaiting
	}

	switch {
	case ev == core.EventInit:
		s.period = s.Queue.Alloc()
		s.spacing = s.Queue.Alloc()
		s.Queue.Set(s.period, s.Period)
		return core.StatusWaiting

	case ev == core.EventExit:
		s.Queue.Free(s.period)
		s.Queue.Free(s.spacing)
		return core.StatusWaiting

	case ev == core.EventTimer && data == s.period:
		s.Queue.Reset(s.period)
		if s.holding || s.ws == core.WaitRechecking {
			s.Skipped++
			return core.StatusWaiting
		}
		s.n = 0
		s.sum = [3]int32{}

	case ev == core.EventTimer && data == s.spacing && s.holding:
		// next sample

	case ev == core.EventSemSignal && data == s.Bus && s.ws == core.WaitRechecking:
		// retry the bus

	default:
		return core.StatusWaiting
	}

	if !s.holding {
		if !s.Bus.Wait(&s.ws) {
			return core.StatusWaiting
		}
		s.holding = true
	}

	x, y, z := s.Dev.ReadRawAcceleration()
	s.sum[0] += x
	s.sum[1] += y
	s.sum[2] += z
	s.n++
	if s.n < s.Samples {
		s.Queue.Set(s.spacing, s.Spacing)
		return core.StatusWaiting
	}

	s.holding = false
	s.Bursts++
	for i := range s.sum {
		s.Average[i] = s.sum[i] / int32(s.n)
	}
	s.Log.Info().
		Int64("x", int64(s.Average[0])).
		Int64("y", int64(s.Average[1])).
		Int64("z", int64(s.Average[2])).
		Log("sensors: burst")
	s.paused = s.Bus.Signal()
	return core.StatusWaiting
}

// Ranger reads the latest distance once per Period.
type Ranger struct {
	Queue  *core.TimerQueue
	Bus    *core.Semaphore
	Dev    RangeFinder
	Period core.Ticks
	Log    *core.Logger

	// Reads is the number of completed reads and Distance the last one.
	Reads    int
	Distance uint16

	et     core.ETimer
	ws     core.WaitState
	paused bool
}

// NewRanger returns a ranger with the default period.
func NewRanger(q *core.TimerQueue, bus *core.Semaphore, dev RangeFinder, rate core.TickRate, log *core.Logger) *Ranger {
	return &Ranger{
		Queue:  q,
		Bus:    bus,
		Dev:    dev,
		Period: rate.Ms(DefaultRangePeriod),
		Log:    log,
	}
}

// Step implements core.Thread.
func (r *Ranger) Step(_ core.ProcessID, ev core.Event, data any) core.Status {
	if r.paused && ev == core.EventSemSignal && data == r.Bus {
		r.paused = false
		return core.StatusWaiting
	}

	switch {
	case ev == core.EventInit:
		r.et = r.Queue.Alloc()
		r.Queue.Set(r.et, r.Period)
		return core.StatusWaiting

	case ev == core.EventExit:
		r.Queue.Free(r.et)
		return core.StatusWaiting

	case ev == core.EventTimer && data == r.et:
		r.Queue.Reset(r.et)
		if r.ws == core.WaitRechecking {
			// still queued for the bus
			return core.StatusWaiting
		}

	case ev == core.EventSemSignal && data == r.Bus && r.ws == core.WaitRechecking:

	default:
		return core.StatusWaiting
	}

	if !r.Bus.Wait(&r.ws) {
		return core.StatusWaiting
	}
	r.Distance = r.Dev.Read(false)
	r.Reads++
	r.Log.Info().Int("mm", int(r.Distance)).Log("sensors: distance")
	r.paused = r.Bus.Signal()
	return core.StatusWaiting
}
