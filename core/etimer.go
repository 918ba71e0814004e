package core

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// ETimer is a handle to an event timer held by a TimerQueue. The zero value
// is not a valid handle; obtain one with TimerQueue.Alloc.
//
// Handles carry a generation, so a handle kept after Free is detected
// instead of silently aliasing a reused record.
type ETimer struct {
	slot uint16
	gen  uint16
}

// Valid reports whether the handle was ever issued.
func (t ETimer) Valid() bool {
	return t.gen != 0
}

type etimerRecord struct {
	timer Timer
	owner ProcessID // NoProcess iff not queued
	gen   uint16
	live  bool
}

// TimerQueue lets processes arm one-shot wake-ups for themselves. Expired
// timers are delivered as EventTimer (data: the ETimer) by the queue's own
// background thread, which must be started once with the scheduler and is
// driven by EventPoll.
//
// TimerQueue is not safe for concurrent use; only RequestPoll may be called
// from interrupt context.
type TimerQueue struct {
	sched   Scheduler
	clock   Clock
	cfg     Config
	log     *Logger
	limiter *catrate.Limiter

	self    ProcessID
	records []etimerRecord
	free    []uint16
	queue   []uint16 // record slots, ascending by expiration
	next    Tick
}

// QueueOption configures a TimerQueue.
type QueueOption func(*TimerQueue)

// WithQueueConfig sets the runtime constants.
func WithQueueConfig(cfg Config) QueueOption {
	return func(q *TimerQueue) {
		q.cfg = cfg
	}
}

// WithQueueLogger sets the logger used for diagnostics.
func WithQueueLogger(l *Logger) QueueOption {
	return func(q *TimerQueue) {
		q.log = l
	}
}

// WithQueueCapacity preallocates room for n timers.
func WithQueueCapacity(n int) QueueOption {
	return func(q *TimerQueue) {
		q.records = make([]etimerRecord, 0, n)
		q.queue = make([]uint16, 0, n)
	}
}

// WithLateFireLimiter overrides the rate limit applied, per owning process,
// to late-delivery warnings. A nil limiter logs every occurrence.
func WithLateFireLimiter(l *catrate.Limiter) QueueOption {
	return func(q *TimerQueue) {
		q.limiter = l
	}
}

// NewTimerQueue creates the timer queue. Start it as a process (it
// implements Thread) before arming timers.
func NewTimerQueue(sched Scheduler, clock Clock, opts ...QueueOption) *TimerQueue {
	q := &TimerQueue{
		sched: sched,
		clock: clock,
		cfg:   DefaultConfig(DefaultTickRate),
		log:   logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 4,
			time.Minute: 30,
		}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Alloc returns a new, unarmed timer.
func (q *TimerQueue) Alloc() ETimer {
	var slot uint16
	if n := len(q.free); n > 0 {
		slot = q.free[n-1]
		q.free = q.free[:n-1]
	} else {
		invariant(len(q.records) < 0xFFFF, "Alloc", "timer arena exhausted")
		q.records = append(q.records, etimerRecord{})
		slot = uint16(len(q.records) - 1)
	}
	r := &q.records[slot]
	if r.gen == 0 {
		r.gen = 1
	}
	r.live = true
	r.owner = NoProcess
	r.timer = Timer{}
	return ETimer{slot: slot, gen: r.gen}
}

// Free stops t and releases its record. t must not be used afterwards.
func (q *TimerQueue) Free(t ETimer) {
	q.Stop(t)
	r := q.record(t, "Free")
	r.live = false
	r.gen++
	if r.gen == 0 {
		r.gen = 1
	}
	q.free = append(q.free, t.slot)
}

// Set arms t to expire interval ticks from now, owned by the calling
// process.
func (q *TimerQueue) Set(t ETimer, interval Ticks) {
	assertNotISR("etimer.Set")
	r := q.record(t, "Set")
	r.timer.Set(q.clock.Now(), interval)
	q.add(t, r)
}

// Reset re-arms t one interval after its previous deadline. Use it in
// periodic loops to stay drift free.
func (q *TimerQueue) Reset(t ETimer) {
	assertNotISR("etimer.Reset")
	r := q.record(t, "Reset")
	r.timer.Reset()
	q.add(t, r)
}

// ResetNext re-arms t at the first whole interval after its previous
// deadline that is still in the future.
func (q *TimerQueue) ResetNext(t ETimer) {
	assertNotISR("etimer.ResetNext")
	r := q.record(t, "ResetNext")
	r.timer.ResetNext(q.clock.Now())
	q.add(t, r)
}

// Restart re-arms t one interval from now.
func (q *TimerQueue) Restart(t ETimer) {
	assertNotISR("etimer.Restart")
	r := q.record(t, "Restart")
	r.timer.Restart(q.clock.Now())
	q.add(t, r)
}

// Adjust shifts the start of t by delta ticks and re-arms it.
func (q *TimerQueue) Adjust(t ETimer, delta int32) {
	assertNotISR("etimer.Adjust")
	r := q.record(t, "Adjust")
	r.timer.Adjust(delta)
	q.add(t, r)
}

// Stop disarms t without delivering an event. Stopping an unarmed timer is
// a no-op.
func (q *TimerQueue) Stop(t ETimer) {
	assertNotISR("etimer.Stop")
	r := q.record(t, "Stop")
	if r.owner != NoProcess && q.unlink(t.slot) {
		RecordTrace(TraceTimerStop, r.owner, q.clock.Now(), uint32(t.slot), 0)
		q.update()
	}
	r.owner = NoProcess
}

// Expired reports whether t is not armed: it fired and was delivered, was
// stopped, or was never set.
func (q *TimerQueue) Expired(t ETimer) bool {
	return q.record(t, "Expired").owner == NoProcess
}

// Owner returns the process t will be delivered to, or NoProcess.
func (q *TimerQueue) Owner(t ETimer) ProcessID {
	return q.record(t, "Owner").owner
}

// ExpirationTime returns the deadline of t.
func (q *TimerQueue) ExpirationTime(t ETimer) Tick {
	return q.record(t, "ExpirationTime").timer.Expiration()
}

// StartTime returns the start tick of t.
func (q *TimerQueue) StartTime(t ETimer) Tick {
	return q.record(t, "StartTime").timer.Start
}

// Pending reports whether any timer is armed.
func (q *TimerQueue) Pending() bool {
	return len(q.queue) != 0
}

// Len returns the number of armed timers.
func (q *TimerQueue) Len() int {
	return len(q.queue)
}

// NextExpirationTime returns the earliest deadline, or 0 if nothing is
// armed.
func (q *TimerQueue) NextExpirationTime() Tick {
	if !q.Pending() {
		return 0
	}
	return q.next
}

// Timers returns the armed timers in delivery order.
func (q *TimerQueue) Timers() []ETimer {
	out := make([]ETimer, len(q.queue))
	for i, slot := range q.queue {
		out[i] = ETimer{slot: slot, gen: q.records[slot].gen}
	}
	return out
}

// RequestPoll asks the scheduler to run the queue's thread soon. Safe from
// interrupt context, e.g. a clock alarm handler.
func (q *TimerQueue) RequestPoll() {
	if q.self != NoProcess {
		q.sched.RequestPoll(q.self)
	}
}

// Step runs the background thread.
func (q *TimerQueue) Step(self ProcessID, ev Event, data any) Status {
	switch ev {
	case EventInit:
		q.self = self
		q.update()

	case EventExited:
		p, ok := data.(ProcessID)
		invariant(ok, "etimer.Step", "exited event without a process id")
		q.purge(p)
		q.update()

	case EventPoll:
		q.drain()
		q.update()
	}
	return StatusWaiting
}

func (q *TimerQueue) record(t ETimer, op string) *etimerRecord {
	ok := t.gen != 0 && int(t.slot) < len(q.records)
	invariant(ok, "etimer."+op, "invalid timer handle")
	r := &q.records[t.slot]
	invariant(r.live && r.gen == t.gen, "etimer."+op, "stale timer handle")
	return r
}

func (q *TimerQueue) expiration(slot uint16) Tick {
	return q.records[slot].timer.Expiration()
}

// add (re)inserts t into the queue for the calling process.
func (q *TimerQueue) add(t ETimer, r *etimerRecord) {
	q.RequestPoll()

	p := q.sched.Current()
	invariant(p != NoProcess, "etimer.add", "timer armed outside a process")
	if r.owner != NoProcess {
		// re-armed before it fired
		if q.unlink(t.slot) && r.owner != p {
			q.log.Notice().
				Str("from", q.sched.Name(r.owner)).
				Str("to", q.sched.Name(p)).
				Log("etimer: timer gets new owner")
		}
	}

	exp := r.timer.Expiration()
	i := 0
	for i < len(q.queue) && !LT(exp, q.expiration(q.queue[i])) {
		i++
	}
	q.queue = append(q.queue, 0)
	copy(q.queue[i+1:], q.queue[i:])
	q.queue[i] = t.slot

	r.owner = p
	RecordTrace(TraceTimerSet, p, q.clock.Now(), exp, uint32(t.slot))

	q.update()
}

// unlink removes slot from the queue, reporting whether it was present.
func (q *TimerQueue) unlink(slot uint16) bool {
	for i, s := range q.queue {
		if s == slot {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return true
		}
	}
	return false
}

// drain delivers every expired timer at the head of the queue.
func (q *TimerQueue) drain() {
	for len(q.queue) != 0 {
		slot := q.queue[0]
		r := &q.records[slot]
		now := q.clock.Now()
		if !r.timer.Expired(now) {
			break
		}

		exp := r.timer.Expiration()
		if delay := int32(now - exp); delay > int32(q.cfg.LateFireSlack) {
			RecordTrace(TraceTimerLate, r.owner, now, exp, uint32(delay))
			q.logLate(r.owner, exp, delay)
		}

		if !q.sched.Post(r.owner, EventTimer, ETimer{slot: slot, gen: r.gen}) {
			q.log.Err().
				Str("process", q.sched.Name(r.owner)).
				Log("etimer: could not post timer event")
		}
		RecordTrace(TraceTimerFire, r.owner, now, exp, uint32(slot))

		q.queue = append(q.queue[:0], q.queue[1:]...)
		r.owner = NoProcess
	}
}

func (q *TimerQueue) logLate(owner ProcessID, exp Tick, delay int32) {
	if q.limiter != nil {
		if _, ok := q.limiter.Allow(owner); !ok {
			return
		}
	}
	q.log.Warning().
		Str("process", q.sched.Name(owner)).
		Uint64("expiration", uint64(exp)).
		Int64("delay_ticks", int64(delay)).
		Log("etimer: timer delivered late")
}

// purge drops every timer owned by p, without delivering events.
func (q *TimerQueue) purge(p ProcessID) {
	kept := q.queue[:0]
	dropped := 0
	for _, slot := range q.queue {
		r := &q.records[slot]
		if r.owner == p {
			r.owner = NoProcess
			dropped++
			continue
		}
		kept = append(kept, slot)
	}
	q.queue = kept
	if dropped != 0 {
		RecordTrace(TraceTimerPurge, p, q.clock.Now(), uint32(dropped), 0)
	}
}

// update caches the earliest deadline and programs the platform wake-up.
// With nothing armed a keepalive wake is programmed instead.
func (q *TimerQueue) update() {
	assertNotISR("etimer.update")
	if len(q.queue) == 0 {
		q.next = 0
		q.clock.ProgramNextWake(q.clock.Now() + q.cfg.Keepalive)
		return
	}
	q.next = q.expiration(q.queue[0])
	if debugChecks {
		q.checkOrder()
	}
	q.clock.ProgramNextWake(q.next)
}

func (q *TimerQueue) checkOrder() {
	prev := q.expiration(q.queue[0])
	for _, slot := range q.queue[1:] {
		exp := q.expiration(slot)
		invariant(GE(exp, prev), "etimer.update", "timer queue out of order")
		prev = exp
	}
}
