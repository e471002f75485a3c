package fibersched

// SchedulerOption configures a Scheduler at construction time. Each option
// validates its argument and panics with a "fibersched: " prefixed message
// on misuse, matching the teacher's own functional-options convention
// (options.go's WithPolicy/WithLimit).
type SchedulerOption func(*schedulerConfig)

type schedulerConfig struct {
	workerThreadCount int
	allocator         FiberAllocator
	threadInitFn      func()
	onWorkerStart     func(workerIndex int)
	onWorkerStop      func(workerIndex int)
	onTaskPanic       func(*PanicError)
	onSpin            func(workerIndex int)
	memoryAwareSpin   bool
}

func defaultSchedulerConfig() schedulerConfig {
	return schedulerConfig{
		workerThreadCount: DefaultWorkerThreadCount(),
		allocator:         defaultAllocator{},
	}
}

// WithWorkerThreadCount sets the number of MultiThreaded workers the
// Scheduler starts with. Panics if n is negative or exceeds
// MaxWorkerThreads. A count of zero means single-threaded-only: all work
// runs on Bind-ed threads.
func WithWorkerThreadCount(n int) SchedulerOption {
	return func(c *schedulerConfig) {
		if n < 0 {
			panic("fibersched: WithWorkerThreadCount requires n >= 0")
		}
		if n > MaxWorkerThreads {
			panic("fibersched: WithWorkerThreadCount exceeds MaxWorkerThreads")
		}
		c.workerThreadCount = n
	}
}

// WithAllocator overrides the FiberAllocator used for every Worker's
// fiber pool. Panics if alloc is nil.
func WithAllocator(alloc FiberAllocator) SchedulerOption {
	return func(c *schedulerConfig) {
		if alloc == nil {
			panic("fibersched: WithAllocator requires a non-nil FiberAllocator")
		}
		c.allocator = alloc
	}
}

// WithThreadInitializer registers a function run once on every
// MultiThreaded worker's OS thread before it begins executing tasks, after
// runtime.LockOSThread. Useful for per-thread setup (e.g. thread-local
// library state) a caller's tasks depend on.
func WithThreadInitializer(fn func()) SchedulerOption {
	return func(c *schedulerConfig) {
		c.threadInitFn = fn
	}
}

// WithOnWorkerStart registers a hook invoked on a worker's own goroutine
// immediately after it starts, before it runs any task.
func WithOnWorkerStart(fn func(workerIndex int)) SchedulerOption {
	return func(c *schedulerConfig) {
		c.onWorkerStart = fn
	}
}

// WithOnWorkerStop registers a hook invoked on a worker's own goroutine
// immediately before its run loop returns.
func WithOnWorkerStop(fn func(workerIndex int)) SchedulerOption {
	return func(c *schedulerConfig) {
		c.onWorkerStop = fn
	}
}

// WithOnTaskPanic registers a hook invoked whenever a Task's body panics.
// The hook runs on the worker goroutine that recovered the panic,
// immediately after recovery; the worker then proceeds to its next piece
// of work as if the Task had returned normally. If no hook is registered,
// recovered task panics are silently dropped after being recovered —
// matching spec.md §7's framing that a panic is observability input, not
// a retried condition.
func WithOnTaskPanic(fn func(*PanicError)) SchedulerOption {
	return func(c *schedulerConfig) {
		c.onTaskPanic = fn
	}
}

// WithOnSpin registers a hook invoked once per steal attempt of a
// worker's spinForWork loop (iterations that pick the worker itself as
// the victim make no attempt and do not fire it), primarily useful for
// tests and metrics that need to observe spin activity directly.
func WithOnSpin(fn func(workerIndex int)) SchedulerOption {
	return func(c *schedulerConfig) {
		c.onSpin = fn
	}
}

// WithMemoryAwareSpin shortens each worker's spin-for-work budget under
// memory pressure, derived from the process's effective soft memory limit
// (see memlimit.go), so a scheduler under tight memory favors parking
// (which lets idle fiber goroutines shrink) over spinning.
func WithMemoryAwareSpin() SchedulerOption {
	return func(c *schedulerConfig) {
		c.memoryAwareSpin = true
	}
}
