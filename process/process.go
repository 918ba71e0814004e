// Package process implements a cooperative, run-to-completion process
// kernel for protothreads. Exactly one thread runs at a time, until it
// yields; events are queued in a fixed-size ring and dispatched one per Run.
package process

import (
	"sync/atomic"

	"gotiki/core"
)

// DefaultMaxEvents is the default capacity of the event ring.
const DefaultMaxEvents = 32

type proc struct {
	id        core.ProcessID
	name      string
	thread    core.Thread
	running   bool
	needsPoll atomic.Bool
}

type event struct {
	to   core.ProcessID
	ev   core.Event
	data any
}

// Kernel is the process table and event dispatcher. It implements
// core.Scheduler.
//
// Kernel is not safe for concurrent use, except RequestPoll, which may be
// called from interrupt context or another goroutine.
type Kernel struct {
	procs   []*proc // ProcessID n lives at procs[n-1]
	current core.ProcessID

	ring []event
	head int
	n    int

	pollRequested atomic.Bool
	nextEvent     core.Event

	log *core.Logger
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithMaxEvents sets the capacity of the event ring.
func WithMaxEvents(n int) Option {
	return func(k *Kernel) {
		if n > 0 {
			k.ring = make([]event, n)
		}
	}
}

// WithLogger sets the kernel logger.
func WithLogger(l *core.Logger) Option {
	return func(k *Kernel) {
		k.log = l
	}
}

// New creates an empty kernel.
func New(opts ...Option) *Kernel {
	k := &Kernel{
		ring: make([]event, DefaultMaxEvents),
		log:  core.GetLogger(),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Start adds a process running t and delivers EventInit to it before
// returning.
func (k *Kernel) Start(name string, t core.Thread) core.ProcessID {
	if len(k.procs) >= int(core.Broadcast)-1 {
		panic(&core.AssertionError{Op: "process.Start", Msg: "process table full"})
	}
	p := &proc{
		id:      core.ProcessID(len(k.procs) + 1),
		name:    name,
		thread:  t,
		running: true,
	}
	k.procs = append(k.procs, p)
	k.log.Debug().
		Str("process", name).
		Int("pid", int(p.id)).
		Log("process started")
	k.call(p, core.EventInit, nil)
	return p.id
}

// Exit stops process id. Every other process receives EventExited with the
// id as data, then the process itself receives EventExit if it is not the
// one calling.
func (k *Kernel) Exit(id core.ProcessID) {
	if p := k.lookup(id); p != nil {
		k.exit(p)
	}
}

// Post queues ev for asynchronous delivery to the process to, or to every
// process with core.Broadcast. It reports false if the ring is full.
func (k *Kernel) Post(to core.ProcessID, ev core.Event, data any) bool {
	if k.n == len(k.ring) {
		k.log.Warning().
			Str("to", k.Name(to)).
			Str("event", ev.String()).
			Int("capacity", len(k.ring)).
			Log("process: event queue full")
		return false
	}
	k.ring[(k.head+k.n)%len(k.ring)] = event{to: to, ev: ev, data: data}
	k.n++
	return true
}

// PostSync delivers ev immediately, running the target thread(s) before it
// returns.
func (k *Kernel) PostSync(to core.ProcessID, ev core.Event, data any) {
	k.deliver(event{to: to, ev: ev, data: data})
}

// RequestPoll marks id to receive EventPoll on the next Run.
func (k *Kernel) RequestPoll(id core.ProcessID) {
	if p := k.lookup(id); p != nil {
		p.needsPoll.Store(true)
		k.pollRequested.Store(true)
	}
}

// Run services pending polls, then dispatches at most one queued event. It
// returns the amount of work left: queued events plus one if polls were
// requested meanwhile.
func (k *Kernel) Run() int {
	if k.pollRequested.Swap(false) {
		for _, p := range k.procs {
			if p.running && p.needsPoll.Swap(false) {
				k.call(p, core.EventPoll, nil)
			}
		}
	}

	if k.n > 0 {
		e := k.ring[k.head]
		k.ring[k.head] = event{}
		k.head = (k.head + 1) % len(k.ring)
		k.n--
		k.deliver(e)
	}

	return k.Pending()
}

// RunUntilIdle calls Run until no work is left or maxSteps runs were made.
// It reports whether the kernel went idle.
func (k *Kernel) RunUntilIdle(maxSteps int) bool {
	for i := 0; i < maxSteps; i++ {
		if k.Run() == 0 {
			return true
		}
	}
	return false
}

// Pending returns the queued events plus one if a poll is outstanding.
func (k *Kernel) Pending() int {
	n := k.n
	if k.pollRequested.Load() {
		n++
	}
	return n
}

// Current returns the process whose thread is running, or core.NoProcess.
func (k *Kernel) Current() core.ProcessID {
	return k.current
}

// Name returns the name of id.
func (k *Kernel) Name(id core.ProcessID) string {
	switch id {
	case core.NoProcess:
		return "none"
	case core.Broadcast:
		return "broadcast"
	}
	if int(id) <= len(k.procs) {
		return k.procs[id-1].name
	}
	return "unknown"
}

// IsRunning reports whether id is a running process.
func (k *Kernel) IsRunning(id core.ProcessID) bool {
	return k.lookup(id) != nil
}

// Processes returns the running processes in start order.
func (k *Kernel) Processes() []core.ProcessID {
	var out []core.ProcessID
	for _, p := range k.procs {
		if p.running {
			out = append(out, p.id)
		}
	}
	return out
}

// AllocEvent returns a new application event kind.
func (k *Kernel) AllocEvent() core.Event {
	if k.nextEvent >= core.EventSystemBase {
		panic(&core.AssertionError{Op: "process.AllocEvent", Msg: "event kinds exhausted"})
	}
	ev := k.nextEvent
	k.nextEvent++
	return ev
}

func (k *Kernel) lookup(id core.ProcessID) *proc {
	if id == core.NoProcess || int(id) > len(k.procs) {
		return nil
	}
	if p := k.procs[id-1]; p.running {
		return p
	}
	return nil
}

func (k *Kernel) deliver(e event) {
	if e.to == core.Broadcast {
		for _, p := range k.procs {
			k.call(p, e.ev, e.data)
		}
		return
	}
	if p := k.lookup(e.to); p != nil {
		k.call(p, e.ev, e.data)
	}
}

func (k *Kernel) call(p *proc, ev core.Event, data any) {
	if !p.running {
		return
	}
	prev := k.current
	k.current = p.id
	if p.thread.Step(p.id, ev, data) == core.StatusExited {
		k.exit(p)
	}
	k.current = prev
}

func (k *Kernel) exit(p *proc) {
	if !p.running {
		return
	}
	self := k.current == p.id
	p.running = false
	p.needsPoll.Store(false)

	for _, q := range k.procs {
		k.call(q, core.EventExited, p.id)
	}

	if !self {
		prev := k.current
		k.current = p.id
		p.thread.Step(p.id, core.EventExit, nil)
		k.current = prev
	}

	k.log.Debug().
		Str("process", p.name).
		Int("pid", int(p.id)).
		Log("process exited")
}
