package fsync

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxromumarov/fibersched"
)

func TestEventManualResetBroadcastsToAll(t *testing.T) {
	const n = 3

	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(2))
	defer s.Close()

	ev := NewEvent(true)
	var woken atomic.Int32
	done := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		s.Enqueue(func() {
			ev.Wait()
			woken.Add(1)
			done <- struct{}{}
		})
	}

	// Give the waiters a chance to register before signaling.
	time.Sleep(20 * time.Millisecond)
	ev.Signal()

	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for manual-reset Event to wake all waiters")
		}
	}
	assert.Equal(t, int32(n), woken.Load())
}

func TestEventAutoResetWakesExactlyOnePerSignal(t *testing.T) {
	const n = 3

	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(2))
	defer s.Close()

	ev := NewEvent(false)
	order := make(chan int, n)

	for i := 0; i < n; i++ {
		id := i
		s.Enqueue(func() {
			ev.Wait()
			order <- id
		})
	}

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < n; i++ {
		ev.Signal()
		select {
		case <-order:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for waiter #%d to wake", i)
		}
	}
}

func TestEventSignalBeforeWaitIsObserved(t *testing.T) {
	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(1))
	defer s.Close()

	ev := NewEvent(true)
	ev.Signal()

	done := make(chan struct{})
	s.Enqueue(func() {
		ev.Wait()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait should return immediately when already signaled")
	}
}

func TestEventResetClearsSignal(t *testing.T) {
	s := fibersched.NewScheduler(fibersched.WithWorkerThreadCount(1))
	defer s.Close()

	ev := NewEvent(true)
	ev.Signal()
	ev.Reset()

	waitReturned := make(chan struct{})
	s.Enqueue(func() {
		ev.Wait()
		close(waitReturned)
	})

	select {
	case <-waitReturned:
		t.Fatal("Wait should not return after Reset without a fresh Signal")
	case <-time.After(50 * time.Millisecond):
	}

	ev.Signal()
	select {
	case <-waitReturned:
	case <-time.After(time.Second):
		t.Fatal("Wait should return after the next Signal")
	}
}

func TestEventWaitOutsideFiberPanics(t *testing.T) {
	ev := NewEvent(false)
	require.Panics(t, func() {
		ev.Wait()
	})
}
