package fibersched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkPushPopMaintainsCount(t *testing.T) {
	w := newWork()
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.pushTaskLocked(func() {})
	w.pushTaskLocked(func() {})
	w.pushFiberLocked(&Fiber{id: 1})

	assert.Equal(t, int64(3), w.queueSize())
	assert.Equal(t, 2, w.numTasksLocked())
	assert.Equal(t, 1, w.numFibersLocked())

	w.popTaskLocked()
	assert.Equal(t, int64(2), w.queueSize())
	assert.Equal(t, 1, w.numTasksLocked())

	w.popFiberLocked()
	assert.Equal(t, int64(1), w.queueSize())
	assert.Equal(t, 0, w.numFibersLocked())
}

func TestWorkIdleLockedRequiresNoBlockedOrWaiting(t *testing.T) {
	w := newWork()
	w.mutex.Lock()
	defer w.mutex.Unlock()

	assert.True(t, w.idleLocked())

	w.numBlockedFibers++
	assert.False(t, w.idleLocked())
	w.numBlockedFibers--

	w.waiting.add(time.Now().Add(time.Hour), &Fiber{id: 1})
	assert.False(t, w.idleLocked())
}

func TestWorkWaitTimeoutWakesOnSignal(t *testing.T) {
	w := newWork()
	woke := make(chan struct{})

	w.mutex.Lock()
	go func() {
		w.mutex.Lock()
		w.signalLocked()
		w.mutex.Unlock()
	}()
	go func() {
		w.mutex.Lock()
		w.waitTimeout(nil)
		w.mutex.Unlock()
		close(woke)
	}()
	w.mutex.Unlock()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waitTimeout did not wake on signalLocked")
	}
}

func TestWorkWaitTimeoutElapses(t *testing.T) {
	w := newWork()
	deadline := time.Now().Add(30 * time.Millisecond)

	start := time.Now()
	w.mutex.Lock()
	w.waitTimeout(&deadline)
	w.mutex.Unlock()
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestWorkWaitTimeoutAlreadyElapsedReturnsImmediately(t *testing.T) {
	w := newWork()
	past := time.Now().Add(-time.Millisecond)

	start := time.Now()
	w.mutex.Lock()
	w.waitTimeout(&past)
	w.mutex.Unlock()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 50*time.Millisecond)
}
