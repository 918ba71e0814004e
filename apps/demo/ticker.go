// Package demo holds example processes for the host simulator and the
// firmware images.
package demo

import "gotiki/core"

// Ticker logs the clock once per period. The timer is re-armed with Reset,
// so the output stays on a fixed grid however late the process runs.
type Ticker struct {
	Sched  core.Scheduler
	Queue  *core.TimerQueue
	Clock  core.Clock
	Rate   core.TickRate
	Period core.Ticks
	Log    *core.Logger

	// Count is the number of periods elapsed.
	Count int

	et      core.ETimer
	started bool
}

// NewTicker returns a Ticker with a one second period.
func NewTicker(sched core.Scheduler, q *core.TimerQueue, clock core.Clock, rate core.TickRate, log *core.Logger) *Ticker {
	return &Ticker{
		Sched:  sched,
		Queue:  q,
		Clock:  clock,
		Rate:   rate,
		Period: rate.Ms(1000),
		Log:    log,
	}
}

// Step implements core.Thread.
func (t *Ticker) Step(self core.ProcessID, ev core.Event, data any) core.Status {
	switch {
	case ev == core.EventInit:
		t.Log.Info().Log("demo: starting ticker")
		t.et = t.Queue.Alloc()
		// yield once before arming
		t.Sched.Post(self, core.EventContinue, nil)

	case ev == core.EventExit:
		t.Queue.Free(t.et)

	case ev == core.EventContinue && !t.started:
		t.started = true
		t.Queue.Set(t.et, t.Period)
		t.print()

	case ev == core.EventTimer && data == t.et:
		t.Count++
		t.Queue.Reset(t.et)
		t.print()
	}
	return core.StatusWaiting
}

func (t *Ticker) print() {
	now := t.Clock.Now()
	t.Log.Info().
		Uint64("ticks", uint64(now)).
		Uint64("ms", uint64(t.Rate.ToMs(now))).
		Int("count", t.Count).
		Log("demo: time")
}
