package fibersched

// fiberContext is this package's realisation of spec.md §4.1's abstract
// FiberContext interface (create_from_current / create / swap). Go has no
// portable stackful-coroutine or assembly context-switch primitive, so a
// fiber context here is a goroutine parked on a single-slot rendezvous
// channel: "switching to" a context means waking its goroutine and
// blocking the caller's own context until something switches back to it.
// The actual register/stack swap is performed by the Go runtime's own
// scheduler when the parked goroutine is woken, not by hand-written
// assembly — this is the one place spec.md explicitly invites an
// implementation-specific realisation ("Platform assembly ... are
// implementation concerns").
//
// As with the original's OSFiber::swap, no signal mask, floating point,
// SIMD, or thread-local state is preserved across a switch beyond what the
// Go runtime itself preserves for any goroutine switch (i.e. none of
// those concepts are fiber-local in Go to begin with).
type fiberContext struct {
	ch chan struct{}
}

// newRootFiberContext wraps the calling goroutine as a fiber context. It
// never spawns a goroutine: the caller itself plays the role of the fiber
// whenever this context is swapped into and parks (via swap) whenever
// control leaves it. Mirrors OSFiber::createFiberFromCurrentThread.
func newRootFiberContext() *fiberContext {
	return &fiberContext{ch: make(chan struct{}, 1)}
}

// newFiberContext allocates a new fiber context that, the first time it is
// swapped into, begins executing entry on its own goroutine. entry must
// never return; if it does, that is an unrecoverable programming defect
// (mirrors spec.md's "entry_fn must never return" contract) and the
// goroutine panics rather than exiting silently.
func newFiberContext(entry func()) *fiberContext {
	ctx := &fiberContext{ch: make(chan struct{}, 1)}
	go func() {
		<-ctx.ch
		entry()
		panic("fibersched: fiber entry function returned")
	}()
	return ctx
}

// swap saves the calling goroutine's place in from and transfers control
// to to. swap must only be called by the goroutine that currently "owns"
// from (i.e. from is the currently-running fiber context). Mirrors
// OSFiber::swap(from, to).
func (from *fiberContext) swap(to *fiberContext) {
	if from == to {
		return
	}
	to.ch <- struct{}{}
	<-from.ch
}
