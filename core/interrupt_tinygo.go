//go:build tinygo

package core

import "runtime/interrupt"

// inInterrupt reports whether the caller runs inside an interrupt handler.
func inInterrupt() bool {
	return interrupt.In()
}
