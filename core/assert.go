package core

// AssertionError is the panic value raised when an internal invariant is
// violated. Assertions are compiled out with the ndebug build tag.
type AssertionError struct {
	Op  string
	Msg string
}

func (e *AssertionError) Error() string {
	return "gotiki: assertion failed in " + e.Op + ": " + e.Msg
}

func invariant(cond bool, op, msg string) {
	if debugChecks && !cond {
		panic(&AssertionError{Op: op, Msg: msg})
	}
}

// assertNotISR guards the entry points that mutate the timer queue or a
// semaphore; neither is reentrant.
func assertNotISR(op string) {
	if debugChecks && inInterrupt() {
		panic(&AssertionError{Op: op, Msg: "called from interrupt context"})
	}
}
