package fibersched

import (
	"runtime"
	"sync/atomic"
	"time"
)

// WorkerMode distinguishes a Worker with its own dedicated OS thread from
// one bound to an existing caller goroutine.
type WorkerMode int

const (
	// ModeMultiThreaded workers spawn and pin their own OS thread via
	// runtime.LockOSThread and run an independent scheduling loop.
	ModeMultiThreaded WorkerMode = iota
	// ModeSingleThreaded workers are bound to an existing caller goroutine
	// (via Scheduler.Bind) and only make progress when that goroutine
	// calls Fiber.Wait (directly or through an fsync primitive) or Unbind;
	// Enqueue only queues the Task.
	ModeSingleThreaded
)

func (m WorkerMode) String() string {
	switch m {
	case ModeMultiThreaded:
		return "MultiThreaded"
	case ModeSingleThreaded:
		return "SingleThreaded"
	default:
		return "Unknown"
	}
}

const (
	// FiberStackSize is the advisory stack size hint passed to
	// FiberAllocator.AllocateStack. Go goroutine stacks grow and shrink on
	// their own; this constant exists only for interface parity with the
	// design this package follows.
	FiberStackSize = 1024 * 1024

	// MaxWorkerThreads bounds the number of MultiThreaded workers a
	// Scheduler may own at once.
	MaxWorkerThreads = 256

	defaultSpinIterations = 256
	defaultSpinDuration   = time.Millisecond
)

// workerByGoroutine maps a goroutine id to the Worker whose fiber (main or
// task) is currently executing on that goroutine. Go has no
// goroutine-local storage API; see goroutinelocal.go.
var workerByGoroutine = newGoroutineLocal[*Worker]()

// currentWorker returns the Worker owning the fiber executing on the
// calling goroutine, or nil if the calling goroutine is not running as
// any Worker's fiber.
func currentWorker() *Worker {
	w, ok := workerByGoroutine.get()
	if !ok {
		return nil
	}
	return w
}

// Worker is the state machine that runs Tasks and Fibers, either on its
// own pinned OS thread (ModeMultiThreaded) or inline on a caller's
// goroutine (ModeSingleThreaded). User code never constructs a Worker
// directly; a Scheduler owns and drives them.
type Worker struct {
	index     int
	mode      WorkerMode
	scheduler *Scheduler

	mainFiberCtx *fiberContext
	mainFiber    *Fiber
	currentFiber *Fiber

	idleFibers  []*Fiber
	allFibers   []*Fiber
	allocations []any
	nextFiberID uint32

	rng *fastRand

	shutdown atomic.Bool
	work     *work

	// stopped is closed when run() returns, for Stop() to join on.
	// Unused in ModeSingleThreaded, which has no dedicated goroutine to
	// join.
	stopped chan struct{}
}

func newWorker(index int, mode WorkerMode, s *Scheduler) *Worker {
	return &Worker{
		index:     index,
		mode:      mode,
		scheduler: s,
		work:      newWork(),
		rng:       newFastRand(),
		stopped:   make(chan struct{}),
	}
}

// Start begins this Worker's execution. In ModeMultiThreaded it spawns and
// pins a new OS thread running the scheduling loop. In ModeSingleThreaded
// it binds to the calling goroutine and returns immediately without
// entering a loop — work is drained lazily by Fiber.Wait and
// (*Worker).runUntilIdle.
func (w *Worker) Start() {
	switch w.mode {
	case ModeMultiThreaded:
		go w.runMultiThreaded()
	case ModeSingleThreaded:
		w.bootstrapCurrentGoroutine()
	}
}

func (w *Worker) runMultiThreaded() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.stopped)

	workerByGoroutine.set(w)
	if fn := w.scheduler.config.threadInitFn; fn != nil {
		fn()
	}

	w.mainFiberCtx = newRootFiberContext()
	w.mainFiber = &Fiber{id: 0, owner: w, ctx: w.mainFiberCtx, state: FiberRunning}
	w.currentFiber = w.mainFiber

	if hook := w.scheduler.config.onWorkerStart; hook != nil {
		hook(w.index)
	}

	w.run()

	if hook := w.scheduler.config.onWorkerStop; hook != nil {
		hook(w.index)
	}

	w.freeAllocations()
}

func (w *Worker) bootstrapCurrentGoroutine() {
	workerByGoroutine.set(w)
	w.mainFiberCtx = newRootFiberContext()
	w.mainFiber = &Fiber{id: 0, owner: w, ctx: w.mainFiberCtx, state: FiberRunning}
	w.currentFiber = w.mainFiber
}

func (w *Worker) freeAllocations() {
	for _, a := range w.allocations {
		w.scheduler.config.allocator.FreeStack(a)
	}
	w.allocations = nil
}

// Stop signals shutdown and blocks until the Worker has drained all
// queued work and (for ModeMultiThreaded) its thread has exited. Requires
// that no blocked Fiber is left without a way to be notified — if one is,
// Stop blocks forever, which this package treats as the Go analogue of
// the original design's "aborts" contract for that misuse (spec.md §7:
// shutdown with pending blocked fibers is a programming error).
func (w *Worker) Stop() {
	w.work.mutex.Lock()
	w.shutdown.Store(true)
	w.work.signalLocked()
	w.work.mutex.Unlock()

	switch w.mode {
	case ModeMultiThreaded:
		<-w.stopped
	case ModeSingleThreaded:
		w.runUntilIdle()
		w.freeAllocations()
		workerByGoroutine.clear()
	}
}

func (w *Worker) shutdownRequested() bool {
	return w.shutdown.Load()
}

// getCurrentFiber returns the Fiber currently executing on this Worker.
// Only ever called by the goroutine currently embodying that Fiber, so no
// locking is required.
func (w *Worker) getCurrentFiber() *Fiber {
	return w.currentFiber
}

// run is the MultiThreaded main loop (spec.md §4.4 steps 1-5).
//
// The inner loop's guard must keep calling waitForWork (and, through it,
// actually park on work.added) for as long as shutdown has been
// requested but the worker isn't yet idle — e.g. a fiber is blocked in
// an unsignaled Fiber.Wait/Wait0 or waiting on a bounded deadline.
// Guarding on "!shutdownRequested()" alone would make this condition
// false the instant Stop() fires, even though nothing runnable exists
// yet: the loop would fall straight through the idle check below (still
// false, nothing to break on) and the dispatch check (also false,
// nothing to dispatch), spinning forever while holding work.mutex —
// which also wedges enqueueFiber's Notify and Scheduler.Enqueue's
// routing, since both need that same mutex to ever wake the blocked
// fiber. Checking shutdown-and-idle together instead keeps routing
// through waitForWork, which parks on the condition variable (bounded by
// the earliest waiting-set deadline, if any) until the blocked fiber is
// notified or its deadline elapses.
func (w *Worker) run() {
	w.work.mutex.Lock()
	for {
		for w.work.numTasksLocked() == 0 && w.work.numFibersLocked() == 0 &&
			!(w.shutdownRequested() && w.work.idleLocked()) {
			w.waitForWork()
		}

		if w.shutdownRequested() && w.work.idleLocked() {
			break
		}

		if w.work.numTasksLocked() > 0 || w.work.numFibersLocked() > 0 {
			target := w.pickNextLocked(w.mainFiber)
			target.state = FiberRunning
			w.currentFiber = target
			w.mainFiber.switchTo(target)
		}
	}
	w.work.mutex.Unlock()
}

// runUntilIdle drains every currently-queued Task and ready Fiber without
// blocking for more to arrive. Supplements spec.md §4.4 with the
// `run_until_idle`/`flush` pair present in the original C++ implementation
// and relied on by Scheduler.Unbind for ModeSingleThreaded workers, and
// by ModeSingleThreaded's own lazy task draining.
func (w *Worker) runUntilIdle() {
	w.work.mutex.Lock()
	for w.work.numTasksLocked() > 0 || w.work.numFibersLocked() > 0 {
		target := w.pickNextLocked(w.mainFiber)
		target.state = FiberRunning
		w.currentFiber = target
		w.mainFiber.switchTo(target)
	}
	w.work.mutex.Unlock()
}

// pickNextLocked returns the Fiber control should switch to next, or nil
// if nothing is runnable and the caller must block directly instead of
// switching. Requires work.mutex held.
//
// nil is only possible when from is the Worker's own main fiber (the
// ModeSingleThreaded lazy-drain path: the bound goroutine itself called
// Fiber.Wait on its main fiber) and there is truly nothing else to run.
// For any other caller (a task fiber suspending), the main fiber is
// always a valid fallback target.
func (w *Worker) pickNextLocked(from *Fiber) *Fiber {
	if w.work.numFibersLocked() > 0 {
		return w.work.popFiberLocked()
	}
	if from == w.mainFiber {
		if w.work.numTasksLocked() > 0 {
			t := w.work.popTaskLocked()
			return w.acquireFiberLocked(t)
		}
		return nil
	}
	return w.mainFiber
}

// suspend is called by the currently-running Fiber f, with work.mutex
// held, to give up control until notified or (if deadline is non-nil)
// until the deadline elapses.
func (w *Worker) suspend(f *Fiber, deadline *time.Time) {
	if deadline != nil {
		f.state = FiberWaiting
		w.work.waiting.add(*deadline, f)
	} else {
		f.state = FiberYielded
	}
	w.work.numBlockedFibers++

	if target := w.pickNextLocked(f); target != nil {
		target.state = FiberRunning
		w.currentFiber = target
		f.switchTo(target)
	} else {
		// Nothing else is runnable: block this goroutine directly on the
		// work condition variable instead of switching to itself (f == the
		// ModeSingleThreaded bound main fiber; see pickNextLocked).
		var d *time.Time
		if !w.work.waiting.Empty() {
			nd := w.work.waiting.next()
			d = &nd
		}
		w.work.waitTimeout(d)
	}

	// The ModeSingleThreaded main fiber also gets control back without a
	// Notify (a task fiber finished, or waitTimeout returned). Take it out
	// of the waiting set so its next suspend can add it again.
	if f == w.mainFiber {
		w.work.waiting.erase(f)
		if f.state == FiberYielded || f.state == FiberWaiting {
			w.work.numBlockedFibers--
			f.state = FiberRunning
		}
	}
}

// wait implements the on-fiber wait(lock, deadline?, pred) procedure of
// spec.md §4.4: acquisition order is always lock (caller-supplied) then
// work.mutex.
func (w *Worker) wait(f *Fiber, lock Locker, deadline *time.Time, pred func() bool) bool {
	w.mustBeCurrent(f)
	w.work.mutex.Lock()
	for {
		if pred() {
			w.work.mutex.Unlock()
			return true
		}
		if deadline != nil && !time.Now().Before(*deadline) {
			w.work.mutex.Unlock()
			return false
		}
		lock.Unlock()
		w.suspend(f, deadline)
		w.work.mutex.Unlock()
		lock.Lock()
		w.work.mutex.Lock()
	}
}

// mustBeCurrent panics unless f is the Fiber currently executing on w and
// the caller is the goroutine running it.
func (w *Worker) mustBeCurrent(f *Fiber) {
	if w == nil || currentWorker() != w || w.getCurrentFiber() != f {
		panic("fibersched: Wait called on a Fiber that is not the calling goroutine's current Fiber")
	}
}

// wait0 implements the lock-free, predicate-free Wait0/Wait0Until
// overloads. Safe only when the notifying and waiting code run on the
// same Worker, per the same-thread-only caveat documented on Fiber.Wait0.
func (w *Worker) wait0(f *Fiber, deadline *time.Time) bool {
	w.mustBeCurrent(f)
	w.work.mutex.Lock()
	w.suspend(f, deadline)
	// Racy by design (documented on Fiber.Wait0Until): this only
	// distinguishes "woke after the deadline" from "woke before it", not
	// "woke because of the deadline" from "woke because of a real Notify
	// that happened to land near it".
	timedOut := deadline != nil && !time.Now().Before(*deadline)
	w.work.mutex.Unlock()
	return !timedOut
}

// enqueueFiber implements spec.md §4.4 "Resumption": moves f onto its
// owner's ready fiber queue, transitioning Yielded/Waiting -> Queued. A
// no-op if f is already Queued or Running. Legal to call from any
// goroutine.
func (w *Worker) enqueueFiber(f *Fiber) {
	w.work.mutex.Lock()
	w.enqueueFiberLocked(f)
	w.work.mutex.Unlock()
}

func (w *Worker) enqueueFiberLocked(f *Fiber) {
	switch f.state {
	case FiberQueued, FiberRunning:
		return
	case FiberWaiting:
		w.work.waiting.erase(f)
		w.work.numBlockedFibers--
	case FiberYielded:
		w.work.numBlockedFibers--
	default:
		panic("fibersched: Notify called on fiber in state " + f.state.String())
	}
	f.state = FiberQueued
	w.work.pushFiberLocked(f)
	w.work.signalLocked()
}

// steal attempts to lift one Task from the front of this Worker's task
// queue without blocking. Returns (nil, false) if num reports nothing
// queued (checked without locking), if the task queue is empty, or if
// another goroutine currently holds work.mutex — a contended steal is
// abandoned rather than waited on, per spec.md §4.4.
func (w *Worker) steal() (Task, bool) {
	if w.work.queueSize() == 0 {
		return nil, false
	}
	if !w.work.mutex.TryLock() {
		return nil, false
	}
	defer w.work.mutex.Unlock()
	if w.work.numTasksLocked() == 0 {
		return nil, false
	}
	return w.work.popTaskLocked(), true
}

// waitForWork is called with work.mutex held, from the top of run()'s
// outer loop, whenever both queues are empty. It unlocks to spin and
// attempt steals, then re-locks and, if still nothing is runnable, parks
// on the work CV (bounded by the earliest waiting-set deadline) and then
// moves every waiting-set entry whose deadline has passed onto the ready
// fiber queue.
//
// A pending shutdown alone must not skip the park below: if a fiber is
// still blocked (numBlockedFibers > 0), shutdown-but-not-idle has to
// keep waiting for that fiber's Notify or deadline, not spin back to the
// caller immediately — see run()'s own comment for the full hazard this
// avoids. Only genuinely nothing left to wait for (idleLocked) lets
// shutdown skip the park.
func (w *Worker) waitForWork() {
	slot := w.scheduler.publishSpinning(w.index)
	w.work.mutex.Unlock()
	found := w.spinForWork()
	w.work.mutex.Lock()
	w.scheduler.unpublishSpinning(slot, w.index)

	if found {
		return
	}
	if w.work.numTasksLocked() > 0 || w.work.numFibersLocked() > 0 {
		return
	}
	if w.shutdownRequested() && w.work.idleLocked() {
		return
	}

	var deadline *time.Time
	if !w.work.waiting.Empty() {
		d := w.work.waiting.next()
		deadline = &d
	}
	w.work.waitTimeout(deadline)
	w.drainExpiredLocked()
}

// drainExpiredLocked moves every waiting-set entry whose deadline has
// elapsed onto the ready fiber queue. Requires work.mutex held.
func (w *Worker) drainExpiredLocked() {
	now := time.Now()
	for {
		f := w.work.waiting.take(now)
		if f == nil {
			return
		}
		w.enqueueFiberLocked(f)
	}
}

// spinIterationBudget returns how many steal attempts spinForWork may
// make before giving up, shortened under memory pressure when
// WithMemoryAwareSpin is set (see memlimit.go).
func (w *Worker) spinIterationBudget() int {
	n := defaultSpinIterations
	if w.scheduler.config.memoryAwareSpin {
		n = int(float64(n) * (1 - memoryPressure()))
		if n < 1 {
			n = 1
		}
	}
	return n
}

// spinForWork attempts, for a bounded number of iterations and a bounded
// wall-clock duration, to steal a Task from a random sibling Worker. On
// success the stolen Task is pushed onto this Worker's own queue and true
// is returned. Must be called without work.mutex held.
func (w *Worker) spinForWork() bool {
	// Index one snapshot of the pool: Close clears workerThreads while
	// workers may still be spinning here.
	w.scheduler.workersMu.RLock()
	workers := w.scheduler.workerThreads
	w.scheduler.workersMu.RUnlock()
	n := len(workers)
	if n <= 1 {
		return false
	}

	budget := w.spinIterationBudget()
	spinUntil := time.Now().Add(defaultSpinDuration)

	for i := 0; i < budget && time.Now().Before(spinUntil); i++ {
		victim := int(w.rng.next() % uint64(n))
		if victim == w.index {
			continue
		}
		if hook := w.scheduler.config.onSpin; hook != nil {
			hook(w.index)
		}
		t, ok := workers[victim].steal()
		if !ok {
			continue
		}
		w.work.mutex.Lock()
		w.work.pushTaskLocked(t)
		w.work.mutex.Unlock()
		return true
	}
	return false
}

// acquireFiberLocked pops a Fiber from the idle pool (creating one if
// empty) and binds t as its entry closure. Requires work.mutex held.
func (w *Worker) acquireFiberLocked(t Task) *Fiber {
	var f *Fiber
	if n := len(w.idleFibers); n > 0 {
		f = w.idleFibers[n-1]
		w.idleFibers = w.idleFibers[:n-1]
	} else {
		f = w.createFiberLocked()
	}
	f.fn = t
	return f
}

func (w *Worker) createFiberLocked() *Fiber {
	w.nextFiberID++
	f := &Fiber{id: w.nextFiberID, owner: w, state: FiberIdle}

	if alloc := w.scheduler.config.allocator.AllocateStack(FiberStackSize); alloc != nil {
		w.allocations = append(w.allocations, alloc)
	}

	f.ctx = newFiberContext(func() { w.fiberLoop(f) })
	w.allFibers = append(w.allFibers, f)
	return f
}

// fiberLoop is the body every task-fiber goroutine runs for its entire
// lifetime: run whatever Task is currently bound to f, return to the
// idle pool, switch back to the main fiber, and park until reused.
func (w *Worker) fiberLoop(f *Fiber) {
	workerByGoroutine.set(w)
	for {
		w.work.mutex.Unlock()
		w.runTaskRecovered(f)
		w.work.mutex.Lock()
		w.finishFiberLocked(f)
		f.ctx.swap(w.mainFiberCtx)
	}
}

func (w *Worker) runTaskRecovered(f *Fiber) {
	defer func() {
		if r := recover(); r == nil {
			return
		} else if hook := w.scheduler.config.onTaskPanic; hook != nil {
			hook(newPanicError(r, w.index, f.id))
		}
	}()
	f.fn()
}

func (w *Worker) finishFiberLocked(f *Fiber) {
	f.fn = nil
	f.state = FiberIdle
	w.idleFibers = append(w.idleFibers, f)
	w.currentFiber = w.mainFiber
}
