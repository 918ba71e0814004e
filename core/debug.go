package core

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger type used throughout the runtime. A nil
// *Logger is valid and discards everything.
type Logger = logiface.Logger[logiface.Event]

// TraceEvent captures a timer or semaphore event for post-mortem analysis
type TraceEvent struct {
	Kind    uint8     // Trace kind code
	Process ProcessID // Process involved
	Clock   Tick      // System clock at event
	Value1  uint32    // Context-dependent value
	Value2  uint32    // Context-dependent value
}

// Trace kind codes
const (
	TraceTimerSet   = 1 // Timer armed (v1=expiration, v2=slot)
	TraceTimerFire  = 2 // Timer delivered (v1=expiration, v2=slot)
	TraceTimerLate  = 3 // Timer delivered late (v1=expiration, v2=delay)
	TraceTimerStop  = 4 // Timer stopped (v1=slot)
	TraceTimerPurge = 5 // Timers dropped for an exited process (v1=count)
	TraceSemAcquire = 6 // Semaphore taken (v1=count after)
	TraceSemBlock   = 7 // Semaphore wait blocked (v1=waiter, v2=broadcast)
	TraceSemSignal  = 8 // Semaphore released (v1=count after, v2=woken)
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// logger is the package logger, set by platform or host code
	logger *Logger

	traceRing     [TraceRingSize]TraceEvent
	traceRingHead uint8
	traceEnabled  = true
)

// SetLogger sets the package logger used by kernels, timer queues and
// semaphores constructed without an explicit logger.
func SetLogger(l *Logger) {
	logger = l
}

// GetLogger returns the package logger (possibly nil).
func GetLogger() *Logger {
	return logger
}

// NewLogger builds a JSON logger writing one line per entry to w.
func NewLogger(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// SetTraceEnabled enables or disables trace capture
func SetTraceEnabled(enabled bool) {
	traceEnabled = enabled
}

// RecordTrace captures an event in the trace ring. It never blocks.
func RecordTrace(kind uint8, p ProcessID, clock Tick, value1, value2 uint32) {
	if !traceEnabled {
		return
	}
	idx := traceRingHead
	traceRing[idx] = TraceEvent{
		Kind:    kind,
		Process: p,
		Clock:   clock,
		Value1:  value1,
		Value2:  value2,
	}
	traceRingHead = (idx + 1) % TraceRingSize
}

// TraceSnapshot returns the recorded events, oldest first.
func TraceSnapshot() []TraceEvent {
	out := make([]TraceEvent, 0, TraceRingSize)
	start := traceRingHead
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := traceRing[(start+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// TraceKindName returns the display name of a trace kind.
func TraceKindName(kind uint8) string {
	switch kind {
	case TraceTimerSet:
		return "TIMER_SET"
	case TraceTimerFire:
		return "TIMER_FIRE"
	case TraceTimerLate:
		return "TIMER_LATE!"
	case TraceTimerStop:
		return "TIMER_STOP"
	case TraceTimerPurge:
		return "TIMER_PURGE"
	case TraceSemAcquire:
		return "SEM_ACQUIRE"
	case TraceSemBlock:
		return "SEM_BLOCK"
	case TraceSemSignal:
		return "SEM_SIGNAL"
	default:
		return "UNKNOWN"
	}
}

// DumpTraceRing writes the trace ring to l (call on shutdown/error).
func DumpTraceRing(l *Logger) {
	events := TraceSnapshot()
	l.Info().Int("events", len(events)).Log("trace ring dump")
	for _, evt := range events {
		l.Info().
			Str("kind", TraceKindName(evt.Kind)).
			Int("pid", int(evt.Process)).
			Uint64("clock", uint64(evt.Clock)).
			Uint64("v1", uint64(evt.Value1)).
			Uint64("v2", uint64(evt.Value2)).
			Log("trace")
	}
}

// ClearTraceRing clears the trace buffer
func ClearTraceRing() {
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceRingHead = 0
}
