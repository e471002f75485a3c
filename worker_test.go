package fibersched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerModeString(t *testing.T) {
	assert.Equal(t, "MultiThreaded", ModeMultiThreaded.String())
	assert.Equal(t, "SingleThreaded", ModeSingleThreaded.String())
	assert.Equal(t, "Unknown", WorkerMode(99).String())
}

func TestWorkerFiberRecycledAcrossTasks(t *testing.T) {
	s := NewScheduler(WithWorkerThreadCount(1))
	defer s.Close()

	ids := make(chan uint32, 3)
	for i := 0; i < 3; i++ {
		done := make(chan struct{})
		s.Enqueue(func() {
			f, _ := CurrentFiber()
			ids <- f.ID()
			close(done)
		})
		<-done
	}
	close(ids)

	first := <-ids
	for id := range ids {
		assert.Equal(t, first, id, "a single-worker scheduler running tasks one at a time should reuse the same fiber")
	}
}

func TestWorkerStealMovesTaskBetweenWorkers(t *testing.T) {
	s := NewScheduler(WithWorkerThreadCount(4))
	defer s.Close()

	victim := s.workerAt(0)
	executed := make(chan struct{})
	enqueueTaskOn(victim, func() { close(executed) })

	task, ok := victim.steal()
	if ok {
		// Won the race against the victim's own loop picking it up first;
		// run it ourselves to prove steal() handed back a valid Task.
		task()
	}

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("task neither executed by the victim nor by the stealer")
	}
}

func TestWorkerStealOnEmptyQueueFails(t *testing.T) {
	s := NewScheduler(WithWorkerThreadCount(1))
	defer s.Close()

	w := s.workerAt(0)
	_, ok := w.steal()
	assert.False(t, ok)
}

func TestWorkerPanicRecoveryContinuesProcessing(t *testing.T) {
	s := NewScheduler(WithWorkerThreadCount(1))
	defer s.Close()

	done := make(chan struct{})
	s.Enqueue(func() { panic("first task panics") })
	s.Enqueue(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not continue processing after a recovered panic")
	}
}
