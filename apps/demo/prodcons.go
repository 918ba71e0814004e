package demo

import "gotiki/core"

const (
	BufSize  = 8
	NumItems = 32
)

// ProducerConsumer is the bounded-buffer example: a producer and a consumer
// process hand NumItems items through a BufSize ring. Full counts filled
// slots, Empty counts free slots and Mutex guards the ring itself.
type ProducerConsumer struct {
	Full, Empty, Mutex *core.Semaphore

	Consumed []int

	log  *core.Logger
	buf  [BufSize]int
	head int
	n    int

	produced int
}

// NewProducerConsumer creates the semaphores. Start Producer and Consumer as
// processes on sched.
func NewProducerConsumer(sched core.Scheduler, clock core.Clock, cfg core.Config, log *core.Logger) *ProducerConsumer {
	opts := []core.SemaphoreOption{core.WithSemaphoreConfig(cfg), core.WithSemaphoreLogger(log)}
	return &ProducerConsumer{
		Full:  core.NewSemaphore(sched, clock, 0, append(opts, core.AsCounter())...),
		Empty: core.NewSemaphore(sched, clock, BufSize, append(opts, core.AsCounter())...),
		Mutex: core.NewSemaphore(sched, clock, 1, opts...),
		log:   log,
	}
}

// Producer returns the producing thread.
func (pc *ProducerConsumer) Producer() core.Thread {
	return &handoff{
		take: pc.Empty,
		give: pc.Full,
		mu:   pc.Mutex,
		work: func() bool {
			pc.buf[(pc.head+pc.n)%BufSize] = pc.produced
			pc.n++
			pc.produced++
			return pc.produced == NumItems
		},
	}
}

// Consumer returns the consuming thread.
func (pc *ProducerConsumer) Consumer() core.Thread {
	return &handoff{
		take: pc.Full,
		give: pc.Empty,
		mu:   pc.Mutex,
		work: func() bool {
			item := pc.buf[pc.head]
			pc.head = (pc.head + 1) % BufSize
			pc.n--
			pc.Consumed = append(pc.Consumed, item)
			pc.log.Debug().Int("item", item).Int("buffered", pc.n).Log("demo: consumed")
			return len(pc.Consumed) == NumItems
		},
	}
}

// Buffered returns the number of items in the ring.
func (pc *ProducerConsumer) Buffered() int { return pc.n }

const (
	hoTake = iota
	hoLock
	hoUnlocked
	hoGiven
)

// handoff is one side of the bounded buffer: take a slot, lock, work,
// unlock, give a slot to the other side.
type handoff struct {
	take, give, mu *core.Semaphore
	work           func() (last bool)

	state  int
	wTake  core.WaitState
	wLock  core.WaitState
	last   bool
	paused *core.Semaphore
}

func (h *handoff) Step(_ core.ProcessID, ev core.Event, data any) core.Status {
	if h.paused != nil {
		// after a Signal that woke someone, yield until our own wake-up
		if ev != core.EventSemSignal || data != h.paused {
			return core.StatusWaiting
		}
		h.paused = nil
	}

	for {
		switch h.state {
		case hoTake:
			if !h.ready(h.wTake, h.take, ev, data) || !h.take.Wait(&h.wTake) {
				return core.StatusWaiting
			}
			h.state = hoLock

		case hoLock:
			if !h.ready(h.wLock, h.mu, ev, data) || !h.mu.Wait(&h.wLock) {
				return core.StatusWaiting
			}
			h.last = h.work()
			h.state = hoUnlocked
			if h.signal(h.mu) {
				return core.StatusWaiting
			}

		case hoUnlocked:
			h.state = hoGiven
			if h.signal(h.give) {
				return core.StatusWaiting
			}

		case hoGiven:
			if h.last {
				return core.StatusExited
			}
			h.state = hoTake
		}
		ev, data = core.EventContinue, nil
	}
}

// ready reports whether a blocked wait should look at sem again.
func (h *handoff) ready(w core.WaitState, sem *core.Semaphore, ev core.Event, data any) bool {
	return w == core.WaitNotEntered || (ev == core.EventSemSignal && data == sem)
}

func (h *handoff) signal(sem *core.Semaphore) bool {
	if sem.Signal() {
		h.paused = sem
		return true
	}
	return false
}
