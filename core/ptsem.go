package core

// WaitState is the resumable state of a Semaphore.Wait call site. Each
// waiting process keeps its own WaitState across yields.
type WaitState uint8

const (
	// WaitNotEntered is the initial state, and the state after acquiring.
	WaitNotEntered WaitState = iota
	// WaitRechecking means the caller blocked and, once resumed, must test
	// the count again.
	WaitRechecking
)

// Semaphore is a counting semaphore for protothreads. Waiting suspends the
// calling thread cooperatively: Wait returns false, the thread yields, and
// calls Wait again when it is resumed.
//
// Only one blocked process is remembered for a targeted wake; any further
// waiters make the next otherwise-idle Signal wake every process, and the
// woken processes race for the count.
type Semaphore struct {
	sched Scheduler
	clock Clock
	cfg   Config
	log   *Logger

	count     uint
	lastBlock Tick
	broadcast bool
	waiter    ProcessID
	holders   []ProcessID
	counter   bool
}

// SemaphoreOption configures a Semaphore.
type SemaphoreOption func(*Semaphore)

// WithSemaphoreConfig sets the runtime constants (the block ceiling).
func WithSemaphoreConfig(cfg Config) SemaphoreOption {
	return func(s *Semaphore) {
		s.cfg = cfg
	}
}

// WithSemaphoreLogger sets the logger used for trace output.
func WithSemaphoreLogger(l *Logger) SemaphoreOption {
	return func(s *Semaphore) {
		s.log = l
	}
}

// AsCounter marks the semaphore as counting resources handed between
// processes (e.g. free buffer slots) rather than guarding a critical
// section, so takes are not attributed to holders and the same process may
// take it repeatedly.
func AsCounter() SemaphoreOption {
	return func(s *Semaphore) {
		s.counter = true
	}
}

// NewSemaphore returns a semaphore with the given initial count.
func NewSemaphore(sched Scheduler, clock Clock, count uint, opts ...SemaphoreOption) *Semaphore {
	s := &Semaphore{
		sched: sched,
		clock: clock,
		cfg:   DefaultConfig(DefaultTickRate),
		log:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	s.Init(count)
	return s
}

// Init sets the count and forgets any waiter and holders.
func (s *Semaphore) Init(count uint) {
	s.count = count
	s.lastBlock = 0
	s.broadcast = false
	s.waiter = NoProcess
	s.holders = s.holders[:0]
}

// Wait tries to take the semaphore for the calling process. It returns
// true once taken. Otherwise the caller is registered for a wake-up and
// must yield, then call Wait again with the same state when resumed; being
// resumed does not imply the semaphore is free.
func (s *Semaphore) Wait(w *WaitState) bool {
	assertNotISR("ptsem.Wait")
	p := s.sched.Current()
	now := s.clock.Now()

	if *w == WaitRechecking {
		invariant(now-s.lastBlock < s.cfg.BlockCeiling, "ptsem.Wait",
			"blocked beyond the ceiling, probable deadlock")
	}

	if s.count > 0 {
		s.count--
		if !s.counter {
			invariant(!s.Holds(p), "ptsem.Wait", "process already holds this semaphore")
			s.holders = append(s.holders, p)
		}
		s.lastBlock = now
		*w = WaitNotEntered
		RecordTrace(TraceSemAcquire, p, now, uint32(s.count), 0)
		s.log.Debug().
			Str("process", s.sched.Name(p)).
			Uint64("count", uint64(s.count)).
			Log("ptsem: got semaphore")
		return true
	}

	if s.waiter == NoProcess {
		s.waiter = p
	} else {
		s.broadcast = true
	}
	*w = WaitRechecking
	RecordTrace(TraceSemBlock, p, now, uint32(s.waiter), boolToU32(s.broadcast))
	s.log.Debug().
		Str("process", s.sched.Name(p)).
		Bool("broadcast", s.broadcast).
		Log("ptsem: blocking")
	return false
}

// Signal releases the semaphore and wakes a waiter: the targeted waiter if
// one is registered, else everyone if a broadcast is pending. When it woke
// someone it also posts the caller a wake-up and returns true; the caller must then yield once before
// continuing, so the woken process runs first.
func (s *Semaphore) Signal() (pause bool) {
	assertNotISR("ptsem.Signal")
	p := s.sched.Current()

	s.count++
	s.release(p)

	woken := NoProcess
	switch {
	case s.waiter != NoProcess:
		woken = s.waiter
		s.post(woken)
		s.waiter = NoProcess
		pause = true
		s.log.Debug().
			Str("process", s.sched.Name(p)).
			Str("waiter", s.sched.Name(woken)).
			Log("ptsem: released, single unblocking")

	case s.broadcast:
		woken = Broadcast
		s.post(Broadcast)
		s.broadcast = false
		pause = true
		s.log.Debug().
			Str("process", s.sched.Name(p)).
			Log("ptsem: released, broadcast unblocking")

	default:
		s.log.Debug().
			Str("process", s.sched.Name(p)).
			Log("ptsem: released, nobody to unblock")
	}
	RecordTrace(TraceSemSignal, p, s.clock.Now(), uint32(s.count), uint32(woken))

	if pause {
		s.post(p)
	}
	return pause
}

// Count returns the current count.
func (s *Semaphore) Count() uint { return s.count }

// Waiter returns the targeted waiter, or NoProcess.
func (s *Semaphore) Waiter() ProcessID { return s.waiter }

// BroadcastPending reports whether the next Signal without a targeted
// waiter will wake every process.
func (s *Semaphore) BroadcastPending() bool { return s.broadcast }

// LastBlock returns the tick the semaphore was last taken.
func (s *Semaphore) LastBlock() Tick { return s.lastBlock }

// Holds reports whether p took the semaphore and has not signalled it
// since. Always false for a counter.
func (s *Semaphore) Holds(p ProcessID) bool {
	for _, h := range s.holders {
		if h == p {
			return true
		}
	}
	return false
}

// Holders returns the processes currently holding the semaphore, in the
// order they took it.
func (s *Semaphore) Holders() []ProcessID {
	return append([]ProcessID(nil), s.holders...)
}

// release forgets p as a holder. Signalling without holding is allowed.
func (s *Semaphore) release(p ProcessID) {
	for i, h := range s.holders {
		if h == p {
			s.holders = append(s.holders[:i], s.holders[i+1:]...)
			return
		}
	}
}

func (s *Semaphore) post(to ProcessID) {
	if !s.sched.Post(to, EventSemSignal, s) {
		s.log.Err().
			Str("process", s.sched.Name(to)).
			Log("ptsem: could not post wake-up")
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
