package fibersched

// FiberAllocator is the allocator trait Fiber creation is delegated
// through. spec.md keeps allocation strategy an external collaborator;
// Go's goroutine stacks are runtime-managed and grow/shrink on their own,
// so the default allocator is a no-op. FiberAllocator exists as a seam for
// callers that want to track or pool large buffers associated with fiber
// creation (e.g. per-fiber scratch space), not to control actual goroutine
// stack memory.
type FiberAllocator interface {
	// AllocateStack is called once per Fiber created by a Worker, before
	// the fiber's goroutine is spawned. size is the configured stack size
	// hint (see FiberStackSize); it is advisory only.
	AllocateStack(size int) any

	// FreeStack is called when a Worker is torn down, once per allocation
	// returned by AllocateStack, in unspecified order.
	FreeStack(allocation any)
}

// defaultAllocator is the no-op FiberAllocator used when a Scheduler is
// created without WithAllocator.
type defaultAllocator struct{}

func (defaultAllocator) AllocateStack(int) any   { return nil }
func (defaultAllocator) FreeStack(any)           {}
