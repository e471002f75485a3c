package fibersched

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
)

// work is spec.md §3/§4.4's Work bundle: everything a Worker's run loop
// needs to find the next thing to execute, plus everything a stealer from
// another Worker needs to peek at and lift a Task without fully locking.
//
// num is read by stealers via steal-victim selection before they ever
// attempt mutex.TryLock, so it lives on its own cache line — the same
// false-sharing guard the teacher's pool.go gives its atomic.Int64 request
// counters, here borrowed from golang.org/x/sys/cpu since work is the one
// struct in this package that is genuinely read from multiple OS threads
// concurrently under contention.
type work struct {
	_ cpu.CacheLinePad

	// num is tasks.Len()+fibers.Len(), maintained alongside mutex-guarded
	// mutation so stealers can cheaply skip empty workers without locking.
	num atomic.Int64

	_ cpu.CacheLinePad

	mutex sync.Mutex

	tasks  *ringQueue[Task]
	fibers *ringQueue[*Fiber]
	waiting *waitingSet

	// numBlockedFibers counts fibers in FiberYielded or FiberWaiting state
	// owned by this Worker — used by the idle/shutdown check (a Worker with
	// blocked fibers is not actually idle even with empty queues).
	numBlockedFibers int

	// notifyAdded and added implement the single condition variable a
	// parked Worker wakes on, mirroring the original's work.added.wait(lock,
	// pred): many distinct reasons to wake (new task, new ready fiber,
	// shutdown, spin timeout) all funnel through one CV rather than one
	// channel per reason, since a Worker can only usefully wait on one
	// thing at a time anyway.
	notifyAdded bool
	added       *sync.Cond
}

func newWork() *work {
	w := &work{
		tasks:   newRingQueue[Task](),
		fibers:  newRingQueue[*Fiber](),
		waiting: newWaitingSet(),
	}
	w.added = sync.NewCond(&w.mutex)
	return w
}

// queueSize returns the current total of runnable tasks and ready fibers,
// without acquiring mutex. Safe to call from any goroutine, including other
// Workers attempting to steal from this one.
func (w *work) queueSize() int64 {
	return w.num.Load()
}

// numTasksLocked and numFibersLocked require mutex held by the caller.
func (w *work) numTasksLocked() int  { return w.tasks.Len() }
func (w *work) numFibersLocked() int { return w.fibers.Len() }

// pushTaskLocked enqueues a task and updates num. Requires mutex held.
func (w *work) pushTaskLocked(t Task) {
	w.tasks.PushBack(t)
	w.num.Add(1)
}

// pushFiberLocked enqueues a ready fiber and updates num. Requires mutex
// held.
func (w *work) pushFiberLocked(f *Fiber) {
	w.fibers.PushBack(f)
	w.num.Add(1)
}

// popTaskLocked removes and returns the front task. Requires mutex held and
// numTasksLocked() > 0.
func (w *work) popTaskLocked() Task {
	t := w.tasks.PopFront()
	w.num.Add(-1)
	return t
}

// popFiberLocked removes and returns the front ready fiber. Requires mutex
// held and numFibersLocked() > 0.
func (w *work) popFiberLocked() *Fiber {
	f := w.fibers.PopFront()
	w.num.Add(-1)
	return f
}

// idleLocked reports whether this Worker has nothing runnable, nothing
// blocked, and nothing waiting — the condition Scheduler.Close waits for on
// every Worker before it lets Close return. Requires mutex held.
func (w *work) idleLocked() bool {
	return w.tasks.Len() == 0 &&
		w.fibers.Len() == 0 &&
		w.numBlockedFibers == 0 &&
		w.waiting.Empty()
}

// signalLocked wakes one waiter on added, if any is parked. Requires mutex
// held.
func (w *work) signalLocked() {
	w.notifyAdded = true
	w.added.Signal()
}

// waitTimeout blocks on added until signalLocked is called or, if
// deadline is non-nil, until it elapses — whichever comes first. Requires
// mutex held; mutex is held again on return, per sync.Cond.Wait's
// contract. sync.Cond has no built-in deadline support, so a deadline is
// implemented with the standard library's own time.AfterFunc-broadcasts-
// the-CV idiom: a timer fires after the remaining duration and acquires
// mutex itself to set notifyAdded and broadcast, same as a real producer
// would.
func (w *work) waitTimeout(deadline *time.Time) {
	if deadline == nil {
		for !w.notifyAdded {
			w.added.Wait()
		}
		w.notifyAdded = false
		return
	}

	d := time.Until(*deadline)
	if d <= 0 {
		return
	}

	timer := time.AfterFunc(d, func() {
		w.mutex.Lock()
		w.notifyAdded = true
		w.added.Broadcast()
		w.mutex.Unlock()
	})
	defer timer.Stop()

	for !w.notifyAdded {
		w.added.Wait()
	}
	w.notifyAdded = false
}
