package fibersched_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/fibersched"
	"github.com/baxromumarov/fibersched/fsync"
)

// TestScenarioEventSequence is S1: four auto-reset events and three tasks
// chained through them must produce the sequence "ABC" regardless of
// scheduling order.
func TestScenarioEventSequence(t *testing.T) {
	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(3))
	defer s.Close()

	a := fsync.NewEvent(false)
	b := fsync.NewEvent(false)
	c := fsync.NewEvent(false)
	doneEvt := fsync.NewEvent(false)

	var mu sync.Mutex
	var sequence string

	s.Enqueue(func() {
		b.Wait()
		mu.Lock()
		sequence += "B"
		mu.Unlock()
		c.Signal()
	})
	s.Enqueue(func() {
		a.Wait()
		mu.Lock()
		sequence += "A"
		mu.Unlock()
		b.Signal()
	})
	s.Enqueue(func() {
		c.Wait()
		mu.Lock()
		sequence += "C"
		mu.Unlock()
		doneEvt.Signal()
	})

	a.Signal()

	waitDone := make(chan struct{})
	s.Enqueue(func() {
		doneEvt.Wait()
		close(waitDone)
	})

	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event-sequence chain to complete")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ABC", sequence)
}

// TestScenarioManualBroadcast is S2: a manual-reset event wakes every
// waiter on a single Signal, each incrementing a counter and joining a
// wait-group.
func TestScenarioManualBroadcast(t *testing.T) {
	const n = 3

	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(3))
	defer s.Close()

	ev := fsync.NewEvent(true)
	wg := fsync.NewWaitGroup(n)
	var counter atomic.Int32

	for i := 0; i < n; i++ {
		s.Enqueue(func() {
			ev.Wait()
			counter.Add(1)
			wg.Done()
		})
	}

	time.Sleep(20 * time.Millisecond) // let all n register as waiters
	ev.Signal()

	joined := make(chan struct{})
	s.Enqueue(func() {
		wg.Wait()
		close(joined)
	})

	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for manual-broadcast wait-group")
	}

	assert.Equal(t, int32(n), counter.Load())
}

// TestScenarioStress is S3: 10,000 tasks each perform a fixed compute
// loop; once Close (which joins every worker) returns, every side-effect
// must have been observed.
func TestScenarioStress(t *testing.T) {
	const total = 10000

	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(8))

	var completed atomic.Int64
	for i := 0; i < total; i++ {
		s.Enqueue(func() {
			sum := 0
			for k := 0; k < 100; k++ {
				sum += k
			}
			_ = sum
			completed.Add(1)
		})
	}

	require.NoError(t, s.Close())
	assert.Equal(t, int64(total), completed.Load())
}

// TestScenarioTimedWait is S4: a Fiber waits on an always-false predicate
// with a 50ms deadline; WaitUntil must return false after roughly that
// long, not before and not much after.
func TestScenarioTimedWait(t *testing.T) {
	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(1))
	defer s.Close()

	const budget = 50 * time.Millisecond
	result := make(chan time.Duration, 1)

	s.Enqueue(func() {
		f, _ := fibersched.CurrentFiber()
		var mu sync.Mutex
		mu.Lock()
		start := time.Now()
		ok := f.WaitUntil(&mu, start.Add(budget), func() bool { return false })
		elapsed := time.Since(start)
		mu.Unlock()
		require.False(t, ok)
		result <- elapsed
	})

	select {
	case elapsed := <-result:
		assert.GreaterOrEqual(t, elapsed, budget)
		assert.Less(t, elapsed, budget+200*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timed wait to elapse")
	}
}

// TestScenarioNestedSchedule is S5: a parent task enqueues two children
// and waits on a wait-group of 2 before returning; the parent's observed
// completion must follow both children's.
func TestScenarioNestedSchedule(t *testing.T) {
	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(3))
	defer s.Close()

	var childrenDone atomic.Int32
	parentDone := make(chan struct{})

	s.Enqueue(func() {
		wg := fsync.NewWaitGroup(2)
		s.Enqueue(func() {
			childrenDone.Add(1)
			wg.Done()
		})
		s.Enqueue(func() {
			childrenDone.Add(1)
			wg.Done()
		})
		wg.Wait()
		assert.Equal(t, int32(2), childrenDone.Load(), "parent must only resume after both children finish")
		close(parentDone)
	})

	select {
	case <-parentDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for nested schedule scenario")
	}
}

// TestScenarioSingleThreadedMode is S6: zero MultiThreaded workers, a
// Bind-ed main goroutine, 100 enqueued tasks drained lazily by a final
// synchronizing Event.Wait.
func TestScenarioSingleThreadedMode(t *testing.T) {
	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(0))
	s.Bind()
	defer s.Unbind()

	const total = 100
	var completed atomic.Int32
	doneEvt := fsync.NewEvent(true)

	mainGoroutine := fibersched.GoroutineID()
	var sawOtherGoroutine atomic.Bool

	for i := 0; i < total; i++ {
		s.Enqueue(func() {
			if fibersched.GoroutineID() != mainGoroutine {
				sawOtherGoroutine.Store(true)
			}
			completed.Add(1)
		})
	}
	s.Enqueue(func() { doneEvt.Signal() })

	doneEvt.Wait()

	assert.Equal(t, int32(total), completed.Load())
	assert.False(t, sawOtherGoroutine.Load(), "single-threaded mode must run every task on the bound goroutine")
}

// TestPropertySingleWorkerFIFO exercises testable property 7: with
// num_workers==1, tasks run in submission order.
func TestPropertySingleWorkerFIFO(t *testing.T) {
	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(1))
	defer s.Close()

	const n = 500
	var mu sync.Mutex
	var order []int

	done := make(chan struct{})
	for i := 0; i < n; i++ {
		id := i
		if id == n-1 {
			s.Enqueue(func() {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				close(done)
			})
			continue
		}
		s.Enqueue(func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for FIFO sequence to complete")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v, "single-worker scheduling must preserve submission order")
	}
}

// TestPropertyReentrantScheduling exercises testable property 8: a task
// may call schedule to submit new tasks while it is itself running.
func TestPropertyReentrantScheduling(t *testing.T) {
	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(2))
	defer s.Close()

	grandchildDone := make(chan struct{})
	s.Enqueue(func() {
		s.Enqueue(func() {
			s.Enqueue(func() {
				close(grandchildDone)
			})
		})
	})

	select {
	case <-grandchildDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for re-entrant schedule chain")
	}
}
