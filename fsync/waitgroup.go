package fsync

import (
	"sync"

	"github.com/baxromumarov/fibersched"
)

// WaitGroup blocks Fibers until its counter reaches zero, the same
// contract as sync.WaitGroup but built on fibersched.Fiber.Wait so
// waiting Fibers free their Worker to run other work instead of blocking
// an OS thread.
type WaitGroup struct {
	mu      sync.Mutex
	count   int
	waiters []*fibersched.Fiber
}

// NewWaitGroup creates a WaitGroup with an initial counter value. Panics
// if n is negative.
func NewWaitGroup(n int) *WaitGroup {
	if n < 0 {
		panic("fsync: NewWaitGroup requires n >= 0")
	}
	return &WaitGroup{count: n}
}

// Add changes the counter by delta. Panics if the result is negative.
func (wg *WaitGroup) Add(delta int) {
	wg.mu.Lock()
	wg.count += delta
	if wg.count < 0 {
		wg.mu.Unlock()
		panic("fsync: WaitGroup counter went negative")
	}
	var waiters []*fibersched.Fiber
	if wg.count == 0 {
		waiters = wg.waiters
		wg.waiters = nil
	}
	wg.mu.Unlock()

	for _, f := range waiters {
		f.Notify()
	}
}

// Done decrements the counter by one.
func (wg *WaitGroup) Done() { wg.Add(-1) }

// Wait blocks the calling Fiber until the counter reaches zero. Must be
// called from within a fibersched Fiber; panics otherwise.
func (wg *WaitGroup) Wait() {
	f, ok := fibersched.CurrentFiber()
	if !ok {
		panic("fsync: WaitGroup.Wait called from outside a fibersched Fiber")
	}

	wg.mu.Lock()
	f.Wait(&wg.mu, func() bool {
		if wg.count == 0 {
			return true
		}
		wg.addWaiterLocked(f)
		return false
	})
	wg.mu.Unlock()
}

func (wg *WaitGroup) addWaiterLocked(f *fibersched.Fiber) {
	for _, w := range wg.waiters {
		if w == f {
			return
		}
	}
	wg.waiters = append(wg.waiters, f)
}
