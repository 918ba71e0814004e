package core

// Timer is a single-shot deadline: it expires Interval ticks after Start.
// It has no owner and delivers nothing by itself; the TimerQueue wraps it
// to produce events.
type Timer struct {
	Start    Tick
	Interval Ticks
}

// Set starts the timer at now.
func (t *Timer) Set(now Tick, interval Ticks) {
	t.Start = now
	t.Interval = interval
}

// Reset advances the timer by exactly one interval from its previous
// deadline, so a periodic caller keeps its cadence even when it observes
// the expiration late.
func (t *Timer) Reset() {
	t.Start += t.Interval
}

// ResetNext advances the timer by whole intervals until its deadline is in
// the future, skipping any missed periods. A zero interval restarts the
// timer instead.
func (t *Timer) ResetNext(now Tick) {
	if t.Interval == 0 {
		t.Restart(now)
		return
	}
	for t.Expired(now) {
		t.Reset()
	}
}

// Restart re-starts the timer at now, keeping its interval. Unlike Reset
// this changes the phase.
func (t *Timer) Restart(now Tick) {
	t.Start = now
}

// Adjust shifts the start tick by delta, e.g. for a clock correction.
func (t *Timer) Adjust(delta int32) {
	t.Start += Tick(delta)
}

// Expired reports whether the interval has elapsed at now.
func (t *Timer) Expired(now Tick) bool {
	return now-t.Start >= t.Interval
}

// Expiration returns the deadline tick.
func (t *Timer) Expiration() Tick {
	return t.Start + t.Interval
}

// Remaining returns the ticks left until expiry, or 0 once expired.
func (t *Timer) Remaining(now Tick) Ticks {
	if t.Expired(now) {
		return 0
	}
	return t.Expiration() - now
}
