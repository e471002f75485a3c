package fibersched

import "time"

// FiberState is one of the five states a Fiber may be in, mutated only
// while its owning Worker's Work.mutex is held (spec.md §3), except for
// the implicit Running↔Running transition that occurs inside swap.
type FiberState int

const (
	// FiberIdle: unused, recycled fiber sitting in the Worker's idle pool.
	FiberIdle FiberState = iota
	// FiberYielded: blocked on Wait with no deadline.
	FiberYielded
	// FiberWaiting: blocked on Wait with a deadline; present in the
	// owning Worker's waitingSet.
	FiberWaiting
	// FiberQueued: ready to resume, present in the owning Worker's ready
	// fiber queue.
	FiberQueued
	// FiberRunning: currently executing.
	FiberRunning
)

func (s FiberState) String() string {
	switch s {
	case FiberIdle:
		return "Idle"
	case FiberYielded:
		return "Yielded"
	case FiberWaiting:
		return "Waiting"
	case FiberQueued:
		return "Queued"
	case FiberRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// Fiber is a stackful, cooperatively-scheduled coroutine bound to exactly
// one Worker for its lifetime. Fibers are created and recycled by their
// owning Worker; user code never constructs one directly. Use
// CurrentFiber to obtain the Fiber executing the calling goroutine.
type Fiber struct {
	// id is unique within the owning Worker and stable for the Fiber's
	// lifetime.
	id uint32

	owner *Worker
	ctx   *fiberContext

	// state is guarded by owner.work.mutex.
	state FiberState

	// seq is assigned by waitingSet.add and used only as a deterministic
	// tie-breaker among fibers sharing a deadline.
	seq uint64

	// fn is the task body bound to this fiber for its current run. Set
	// by the Worker immediately before switching into the fiber; cleared
	// once the fiber returns to idle.
	fn func()
}

// ID returns the Fiber's worker-unique identifier.
func (f *Fiber) ID() uint32 { return f.id }

// CurrentFiber returns the Fiber running on the calling goroutine, or
// (nil, false) if the calling goroutine is not executing as a fiber of any
// bound Worker.
func CurrentFiber() (*Fiber, bool) {
	w := currentWorker()
	if w == nil {
		return nil, false
	}
	f := w.getCurrentFiber()
	if f == nil {
		return nil, false
	}
	return f, true
}

// Wait suspends the calling fiber until pred returns true. lock must be
// held by the caller; Wait unlocks it immediately before suspending the
// fiber and re-locks it before returning. pred is always evaluated while
// lock is held. Wait must only be called on the currently-executing fiber
// of some Worker — calling it otherwise is a programming defect and
// panics.
func (f *Fiber) Wait(lock Locker, pred func() bool) {
	f.owner.wait(f, lock, nil, pred)
}

// WaitUntil is Wait with a deadline: it returns false if deadline elapses
// with pred still false, true otherwise (true iff pred held under lock at
// the moment of return).
func (f *Fiber) WaitUntil(lock Locker, deadline time.Time, pred func() bool) bool {
	return f.owner.wait(f, lock, &deadline, pred)
}

// Wait0 suspends the calling fiber until Notify is called, without a lock
// or predicate.
//
// Warning: this overload offers no safety against a Notify that races
// ahead of the corresponding Wait when called from a different goroutine.
// It is only safe when the notifying and waiting code run on the same
// fiber's owning Worker and the happens-before relationship is otherwise
// established. Use Wait(lock, pred) for cross-thread signalling.
func (f *Fiber) Wait0() {
	f.owner.wait0(f, nil)
}

// Wait0Until is Wait0 with a deadline; same cross-thread caveat applies.
func (f *Fiber) Wait0Until(deadline time.Time) bool {
	return f.owner.wait0(f, &deadline)
}

// Notify makes the Fiber eligible to run again. If the Fiber is Yielded or
// Waiting it is moved (removing it from the waiting set if present) onto
// its owner's ready fiber queue and transitions to Queued. If it is
// already Queued or Running, Notify is a no-op. Legal to call from any
// goroutine.
func (f *Fiber) Notify() {
	f.owner.enqueueFiber(f)
}

// switchTo transfers control from f (the currently-running fiber) to to.
// Must only be called by the goroutine currently executing f.
func (f *Fiber) switchTo(to *Fiber) {
	f.ctx.swap(to.ctx)
}

// Locker is satisfied by *sync.Mutex, *sync.RWMutex, and any type
// providing Lock/Unlock — the user lock Fiber.Wait is contractually given
// locked and must hand back locked.
type Locker interface {
	Lock()
	Unlock()
}
