package fibersched

import (
	"sync"
	"sync/atomic"
)

// initialEnqueueIndex biases the round-robin enqueue counter so that the
// first few target indices hash well across a small worker count, per
// spec.md §3's exact value.
const initialEnqueueIndex = 0x8000000

// spinningWorkersSize is the size of the ring of worker indices
// advertising themselves as about to park, per spec.md §3 ("a small ring
// of atomic worker IDs").
const spinningWorkersSize = 8

// noSpinningWorker is the sentinel stored in an empty spinningWorkers
// slot.
const noSpinningWorker = -1

// Scheduler owns a fixed pool of MultiThreaded Workers plus, for every
// goroutine that calls Bind, a SingleThreaded Worker bound to it alone.
// It routes enqueued Tasks to a Worker and tracks which Workers are
// currently spinning so producers can hand off directly to an
// about-to-park Worker instead of waiting for its next round-robin turn.
type Scheduler struct {
	config schedulerConfig

	workersMu    sync.RWMutex
	workerThreads []*Worker

	nextEnqueueIndex atomic.Uint64

	spinningWorkers       [spinningWorkersSize]atomic.Int64
	nextSpinningWorkerIdx atomic.Uint64

	singleThreadedMu      sync.RWMutex
	singleThreadedWorkers map[int64]*Worker

	enqueued atomic.Bool
}

// boundSchedulers realises spec.md §3's thread-local Scheduler.bound as a
// goroutine-local slot; see goroutinelocal.go.
var boundSchedulers = newGoroutineLocal[*Scheduler]()

// NewScheduler constructs a Scheduler and starts its MultiThreaded
// workers. With no options, the worker count defaults to
// DefaultWorkerThreadCount().
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	cfg := defaultSchedulerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Scheduler{
		config:                cfg,
		singleThreadedWorkers: make(map[int64]*Worker),
	}
	s.nextEnqueueIndex.Store(initialEnqueueIndex)
	for i := range s.spinningWorkers {
		s.spinningWorkers[i].Store(noSpinningWorker)
	}

	s.resizeWorkers(cfg.workerThreadCount)
	return s
}

func (s *Scheduler) resizeWorkers(n int) {
	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = newWorker(i, ModeMultiThreaded, s)
	}

	s.workersMu.Lock()
	s.workerThreads = workers
	s.workersMu.Unlock()

	for _, w := range workers {
		w.Start()
	}
}

// Close stops every MultiThreaded worker, joining their threads, and
// returns once all of them have drained. Panics if any goroutine is still
// Bind-ed — callers must Unbind before closing.
func (s *Scheduler) Close() error {
	s.workersMu.Lock()
	workers := s.workerThreads
	s.workerThreads = nil
	s.workersMu.Unlock()

	for _, w := range workers {
		w.Stop()
	}

	s.singleThreadedMu.RLock()
	remaining := len(s.singleThreadedWorkers)
	s.singleThreadedMu.RUnlock()
	if remaining > 0 {
		panic("fibersched: Close called with goroutines still Bind-ed; call Unbind first")
	}

	return nil
}

// SetWorkerThreadCount replaces the MultiThreaded worker pool with n
// freshly started workers. Per spec.md §9's open question, behavior after
// tasks have already been enqueued is explicitly undefined upstream;
// fibersched resolves that by panicking rather than silently
// reinitializing workers out from under queued work.
func (s *Scheduler) SetWorkerThreadCount(n int) {
	if n < 0 || n > MaxWorkerThreads {
		panic("fibersched: SetWorkerThreadCount requires 0 <= n <= MaxWorkerThreads")
	}
	if s.enqueued.Load() {
		panic("fibersched: SetWorkerThreadCount called after a Task was already enqueued")
	}

	s.workersMu.Lock()
	old := s.workerThreads
	s.workersMu.Unlock()
	for _, w := range old {
		w.Stop()
	}

	s.resizeWorkers(n)
}

// WorkerThreadCount returns the current number of MultiThreaded workers.
func (s *Scheduler) WorkerThreadCount() int {
	return s.numWorkers()
}

// SetThreadInitializer registers fn to run once on every MultiThreaded
// worker thread started from this point on, before it processes any task.
// Workers already running are not affected.
func (s *Scheduler) SetThreadInitializer(fn func()) {
	s.config.threadInitFn = fn
}

func (s *Scheduler) numWorkers() int {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()
	return len(s.workerThreads)
}

func (s *Scheduler) workerAt(i int) *Worker {
	s.workersMu.RLock()
	defer s.workersMu.RUnlock()
	return s.workerThreads[i]
}

// Bind gives the calling goroutine its own SingleThreaded Worker and
// records this Scheduler as the one bound to that goroutine (retrievable
// with Get). Panics if the calling goroutine already has a bound
// Scheduler.
func (s *Scheduler) Bind() *Scheduler {
	if _, ok := boundSchedulers.get(); ok {
		panic("fibersched: Bind called on a goroutine that already has a bound Scheduler")
	}

	gid := goroutineID()
	w := newWorker(-1, ModeSingleThreaded, s)
	w.Start()

	s.singleThreadedMu.Lock()
	s.singleThreadedWorkers[gid] = w
	s.singleThreadedMu.Unlock()

	boundSchedulers.set(s)
	return s
}

// Unbind drains the calling goroutine's SingleThreaded Worker (running
// any Tasks still queued on it to completion) and releases the binding
// set up by Bind. Panics if the calling goroutine has no bound Scheduler.
func (s *Scheduler) Unbind() {
	gid := goroutineID()

	s.singleThreadedMu.Lock()
	w, ok := s.singleThreadedWorkers[gid]
	if ok {
		delete(s.singleThreadedWorkers, gid)
	}
	s.singleThreadedMu.Unlock()

	if !ok {
		panic("fibersched: Unbind called on a goroutine with no bound Scheduler")
	}

	w.Stop()
	boundSchedulers.clear()
}

// Get returns the Scheduler bound to the calling goroutine via Bind, or
// (nil, false) if none is bound.
func Get() (*Scheduler, bool) {
	return boundSchedulers.get()
}

func (s *Scheduler) boundSingleThreadedWorker() *Worker {
	gid := goroutineID()
	s.singleThreadedMu.RLock()
	defer s.singleThreadedMu.RUnlock()
	return s.singleThreadedWorkers[gid]
}

// publishSpinning advertises workerIndex in the spinning-workers ring
// before a Worker begins its bounded spin-for-work attempt, so Enqueue
// can hand a Task directly to it instead of waiting for round-robin.
// Returns the ring slot used, to be passed to unpublishSpinning.
func (s *Scheduler) publishSpinning(workerIndex int) int {
	slot := int(s.nextSpinningWorkerIdx.Add(1)-1) % spinningWorkersSize
	s.spinningWorkers[slot].Store(int64(workerIndex))
	return slot
}

// unpublishSpinning retracts a worker's advertisement, but only if no
// producer has claimed (or a later publish has overwritten) the slot in
// the meantime.
func (s *Scheduler) unpublishSpinning(slot, workerIndex int) {
	s.spinningWorkers[slot].CompareAndSwap(int64(workerIndex), noSpinningWorker)
}

// claimSpinningWorker attempts to CAS-claim one published spinning-worker
// slot, returning the Worker it names, or nil if none is currently
// advertised.
func (s *Scheduler) claimSpinningWorker() *Worker {
	for i := range s.spinningWorkers {
		id := s.spinningWorkers[i].Load()
		if id < 0 {
			continue
		}
		if s.spinningWorkers[i].CompareAndSwap(id, noSpinningWorker) {
			return s.workerAt(int(id))
		}
	}
	return nil
}

// Enqueue submits t for execution. Per spec.md §4.5: a spinning worker is
// preferred if one is currently advertised; otherwise the task is routed
// round-robin across the MultiThreaded pool; with zero MultiThreaded
// workers, it is routed to the calling goroutine's Bind-ed
// SingleThreaded worker. Panics if t is nil, or if there are zero
// MultiThreaded workers and the calling goroutine has none bound.
func (s *Scheduler) Enqueue(t Task) {
	if t == nil {
		panic("fibersched: Enqueue requires a non-nil Task")
	}
	s.enqueued.Store(true)

	n := s.numWorkers()
	if n == 0 {
		w := s.boundSingleThreadedWorker()
		if w == nil {
			panic("fibersched: Enqueue called with zero worker threads and no Scheduler bound on the calling goroutine")
		}
		enqueueTaskOn(w, t)
		return
	}

	if victim := s.claimSpinningWorker(); victim != nil && victim.work.mutex.TryLock() {
		victim.work.pushTaskLocked(t)
		victim.work.signalLocked()
		victim.work.mutex.Unlock()
		return
	}

	idx := s.nextEnqueueIndex.Add(1) - 1
	w := s.workerAt(int(idx % uint64(n)))
	enqueueTaskOn(w, t)
}

func enqueueTaskOn(w *Worker, t Task) {
	w.work.mutex.Lock()
	w.work.pushTaskLocked(t)
	w.work.signalLocked()
	w.work.mutex.Unlock()
}

// Schedule submits t to the Scheduler bound to the calling goroutine via
// Bind. Panics if no Scheduler is bound.
func Schedule(t Task) {
	s, ok := Get()
	if !ok {
		panic("fibersched: Schedule called with no Scheduler bound to the calling goroutine")
	}
	s.Enqueue(t)
}

// ScheduleFunc is Schedule for a plain func(), for callers that would
// otherwise write Schedule(Task(f)).
func ScheduleFunc(f func()) {
	Schedule(Task(f))
}
