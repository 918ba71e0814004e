package core

import "strconv"

// ProcessID identifies a process in the scheduler's process table.
// It is a plain, non-owning reference: holders must tolerate the process
// exiting, which the scheduler announces with EventExited.
type ProcessID uint16

const (
	// NoProcess is the "no process" sentinel.
	NoProcess ProcessID = 0
	// Broadcast addresses every running process.
	Broadcast ProcessID = 0xFFFF
)

// Event is the kind of an event delivered to a process.
type Event uint8

// System event kinds. Values below EventSystemBase are available for
// application events (see the kernel's AllocEvent).
const (
	EventSystemBase Event = 0x80

	EventNone      Event = 0x80
	EventInit      Event = 0x81
	EventPoll      Event = 0x82
	EventExit      Event = 0x83
	EventContinue  Event = 0x85
	EventMsg       Event = 0x86
	EventExited    Event = 0x87
	EventTimer     Event = 0x88
	EventSemSignal Event = 0x89
)

// String returns the event name, for diagnostics
func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventInit:
		return "init"
	case EventPoll:
		return "poll"
	case EventExit:
		return "exit"
	case EventContinue:
		return "continue"
	case EventMsg:
		return "msg"
	case EventExited:
		return "exited"
	case EventTimer:
		return "timer"
	case EventSemSignal:
		return "semsignal"
	default:
		return "user" + strconv.Itoa(int(e))
	}
}

// Status is returned by a Thread step.
type Status uint8

const (
	// StatusWaiting means the thread yielded and expects further events.
	StatusWaiting Status = iota
	// StatusExited means the thread ran to completion (or exited) and must
	// be removed from the process table.
	StatusExited
)

// Thread is the body of a cooperative process. Step runs until the thread
// yields (StatusWaiting) or ends (StatusExited); any state the thread needs
// across yields lives in the implementation, not on the stack.
type Thread interface {
	Step(self ProcessID, ev Event, data any) Status
}

// ThreadFunc adapts a function to Thread.
type ThreadFunc func(self ProcessID, ev Event, data any) Status

// Step calls f.
func (f ThreadFunc) Step(self ProcessID, ev Event, data any) Status {
	return f(self, ev, data)
}

// Scheduler is the part of the process layer the timer queue and the
// semaphore depend on.
type Scheduler interface {
	// Current returns the process whose thread is executing.
	Current() ProcessID

	// Post queues an event for asynchronous delivery. It reports false if
	// the event could not be queued.
	Post(to ProcessID, ev Event, data any) bool

	// RequestPoll asks for p to receive EventPoll soon. Safe to call from
	// interrupt context.
	RequestPoll(p ProcessID)

	// Name returns a human-readable process name.
	Name(p ProcessID) string
}
