package fsync

import (
	"sync"

	"github.com/baxromumarov/fibersched"
)

// Event is a one-bit signal Fibers can wait on. An auto-reset Event
// releases exactly one waiting Fiber per Signal and clears itself; a
// manual-reset Event stays signaled until Reset is called and releases
// every Fiber waiting at the time of each Signal (plus any Fiber that
// calls Wait afterward, until Reset).
type Event struct {
	mu       sync.Mutex
	signaled bool
	manual   bool
	waiters  []*fibersched.Fiber
}

// NewEvent creates an Event. manualReset selects manual-reset semantics;
// false gives the default auto-reset behavior.
func NewEvent(manualReset bool) *Event {
	return &Event{manual: manualReset}
}

// Signal marks the Event signaled and wakes every Fiber currently waiting
// on it. For an auto-reset Event, only the first of those to actually
// re-acquire the lock and observe the signal proceeds; the rest re-check,
// find the signal already consumed, and resume waiting — this resolves
// naturally out of Fiber.Wait's lock-and-recheck contract, without
// fsync needing to pick a winner itself.
func (e *Event) Signal() {
	e.mu.Lock()
	e.signaled = true
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, f := range waiters {
		f.Notify()
	}
}

// Reset clears the signal without waking anyone. Only meaningful for a
// manual-reset Event; harmless on an auto-reset one.
func (e *Event) Reset() {
	e.mu.Lock()
	e.signaled = false
	e.mu.Unlock()
}

// Wait blocks the calling Fiber until the Event is signaled. Must be
// called from within a fibersched Fiber; panics otherwise.
func (e *Event) Wait() {
	f, ok := fibersched.CurrentFiber()
	if !ok {
		panic("fsync: Event.Wait called from outside a fibersched Fiber")
	}

	e.mu.Lock()
	f.Wait(&e.mu, func() bool {
		if e.signaled {
			e.removeWaiterLocked(f)
			if !e.manual {
				e.signaled = false
			}
			return true
		}
		e.addWaiterLocked(f)
		return false
	})
	e.mu.Unlock()
}

func (e *Event) addWaiterLocked(f *fibersched.Fiber) {
	for _, w := range e.waiters {
		if w == f {
			return
		}
	}
	e.waiters = append(e.waiters, f)
}

func (e *Event) removeWaiterLocked(f *fibersched.Fiber) {
	for i, w := range e.waiters {
		if w == f {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}
