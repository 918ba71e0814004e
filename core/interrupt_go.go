//go:build !tinygo

package core

import "sync/atomic"

// isrDepth simulates interrupt nesting on regular Go (for testing and the
// host simulator).
var isrDepth atomic.Int32

// inInterrupt reports whether the caller runs inside a (simulated) interrupt
// handler.
func inInterrupt() bool {
	return isrDepth.Load() > 0
}

// SimulateInterrupt runs fn as if it were an interrupt handler, so entry
// points that must not be called from interrupt context can be exercised.
func SimulateInterrupt(fn func()) {
	isrDepth.Add(1)
	defer isrDepth.Add(-1)
	fn()
}
