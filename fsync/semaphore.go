package fsync

import (
	"sync"

	"github.com/baxromumarov/fibersched"
)

// Semaphore is a counting semaphore (every Acquire and Release moves one
// slot) for bounding concurrency among Fibers. Adapted from the teacher's channel-based Semaphore: the
// capacity accounting is identical, but Acquire blocks via
// fibersched.Fiber.Wait instead of a buffered channel send, so a blocked
// Fiber never ties up its Worker's OS thread.
type Semaphore struct {
	mu       sync.Mutex
	cap      int
	acquired int
	waiters  []*fibersched.Fiber
}

// NewSemaphore creates a semaphore with the given capacity. Panics if n
// <= 0.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		panic("fsync: NewSemaphore requires n > 0")
	}
	return &Semaphore{cap: n}
}

// Acquire blocks the calling Fiber until a slot is available. Must be
// called from within a fibersched Fiber; panics otherwise.
func (s *Semaphore) Acquire() {
	f, ok := fibersched.CurrentFiber()
	if !ok {
		panic("fsync: Semaphore.Acquire called from outside a fibersched Fiber")
	}

	s.mu.Lock()
	f.Wait(&s.mu, func() bool {
		if s.acquired < s.cap {
			s.acquired++
			return true
		}
		s.addWaiterLocked(f)
		return false
	})
	s.mu.Unlock()
}

// TryAcquire attempts to acquire a slot without blocking. Returns true if
// acquired, false otherwise.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired >= s.cap {
		return false
	}
	s.acquired++
	return true
}

// Release releases a slot. Panics if more slots are released than
// acquired.
func (s *Semaphore) Release() {
	s.mu.Lock()
	if s.acquired == 0 {
		s.mu.Unlock()
		panic("fsync: Semaphore.Release called without matching Acquire")
	}
	s.acquired--
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, f := range waiters {
		f.Notify()
	}
}

// Available returns the number of free slots. The value may be stale in
// concurrent contexts.
func (s *Semaphore) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap - s.acquired
}

func (s *Semaphore) addWaiterLocked(f *fibersched.Fiber) {
	for _, w := range s.waiters {
		if w == f {
			return
		}
	}
	s.waiters = append(s.waiters, f)
}
