package fibersched

import (
	"fmt"
	"runtime"
)

// PanicError wraps a panic recovered from a running Task together with the
// goroutine stack trace captured at the point of the panic and the
// identities of the Worker and Fiber that were executing it.
//
// Task is a plain func(); there is no return-value error channel for it
// (spec.md treats a task function as `-> ()`, never `-> Result`), so a
// panic is the only failure signal a Task body can produce. It is never
// retried and never re-raised on the caller's goroutine — the Worker's run
// loop recovers it, builds a *PanicError, and reports it to WithOnTaskPanic
// if one was registered, then moves on to the next piece of work exactly as
// if the Task had returned normally.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the stack trace of the goroutine that panicked, captured
	// before the fiber's run loop recovers.
	Stack string

	// WorkerIndex identifies which of the Scheduler's workers ran the
	// panicking task.
	WorkerIndex int

	// FiberID is the worker-unique id of the Fiber that ran the panicking
	// task.
	FiberID uint32
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fibersched: task panicked on worker %d fiber %d: %v\n\n%s",
		e.WorkerIndex, e.FiberID, e.Value, e.Stack)
}

func (e *PanicError) Unwrap() error { return nil }

// newPanicError captures the calling goroutine's stack trace and builds a
// *PanicError for the given recovered value. 8 KiB is enough for most
// stack traces; runtime.Stack truncates gracefully if the buffer is too
// small.
func newPanicError(v any, workerIndex int, fiberID uint32) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Value:       v,
		Stack:       string(buf[:n]),
		WorkerIndex: workerIndex,
		FiberID:     fiberID,
	}
}
