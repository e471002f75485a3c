// Package fibersched is a hybrid task-and-fiber scheduler: a fixed pool of
// Workers runs user-submitted Tasks, each on its own cooperatively
// scheduled Fiber, so a Task may block on a synchronization primitive
// without blocking the underlying OS thread.
//
// # Scheduling model
//
// A Scheduler owns a fixed number of MultiThreaded Workers (one
// runtime.LockOSThread-pinned goroutine each) plus, for every goroutine
// that calls [Scheduler.Bind], a SingleThreaded Worker bound to that
// goroutine alone. [Scheduler.Enqueue] (or the free functions [Schedule]
// and [ScheduleFunc], which operate on the Bind-ed scheduler of the
// calling goroutine) places a Task on one Worker's queue; that Worker pops
// it, binds it to a Fiber (recycled from an idle pool, or newly created),
// and runs it.
//
// # Blocking without blocking a thread
//
// Inside a Task, [CurrentFiber] returns the Fiber currently executing it.
// Call [Fiber.Wait] with a lock held and a predicate to suspend until some
// other goroutine calls [Fiber.Notify] and the predicate holds — the
// Worker immediately picks up its next piece of work rather than idling
// its OS thread. This is the one primitive every higher-level
// synchronization object in package fsync is built on.
//
// # Work stealing and spinning
//
// An idle Worker first spins briefly, attempting to steal a Task from
// another Worker's queue (ready Fibers are never stolen; they stay with
// the Worker that owns them), before parking on its condition
// variable. This keeps latency low under bursty load without paying a
// park/wake round trip for every short gap in work. See
// [WithMemoryAwareSpin] to shorten the spin budget under memory pressure.
//
// # Single-threaded mode
//
// [Scheduler.Bind] gives the calling goroutine its own SingleThreaded
// Worker and marks it as the Scheduler bound to that goroutine,
// retrievable with [Get]. When the Scheduler has zero MultiThreaded
// workers, work enqueued from a bound goroutine goes to that goroutine's
// SingleThreaded Worker, which has no goroutine of its own: its Tasks run
// one at a time, only while the bound goroutine blocks in [Fiber.Wait]
// (directly or through an fsync primitive) or calls [Scheduler.Unbind].
// Each such Task runs on a fiber goroutine of its own that the bound
// goroutine hands control to; no Task runs on the bound goroutine itself.
// With one or more MultiThreaded workers, Enqueue routes to those workers
// even from a bound goroutine. [Scheduler.Unbind] drains remaining queued
// work before releasing the binding.
//
// # Observability
//
// The scheduler carries no logging dependency of its own. Register
// [SchedulerOption] hooks to observe lifecycle events on your own terms:
//
//   - [WithThreadInitializer]: runs once per MultiThreaded worker thread,
//     before it executes any task.
//   - [WithOnWorkerStart] / [WithOnWorkerStop]: worker lifecycle.
//   - [WithOnTaskPanic]: a Task's body panicked; receives a [*PanicError]
//     with the recovered value, a captured stack trace, and the
//     worker/fiber that were running it.
//   - [WithOnSpin]: fires once per steal attempt while a worker spins,
//     mainly useful for tests.
//
// # Sizing
//
// [DefaultWorkerThreadCount] returns a cgroup-aware GOMAXPROCS, used when
// [WithWorkerThreadCount] is not given. [Scheduler.SetWorkerThreadCount]
// may only be called before any Task has been enqueued; calling it after
// is a programming defect and panics.
//
// # Synchronization primitives
//
// Package fibersched itself has no knowledge of events, wait groups, or
// semaphores — those live in the separate subpackage
// [github.com/baxromumarov/fibersched/fsync], built entirely on
// [Fiber.Wait] and [Fiber.Notify], to keep the core scheduler's surface
// exactly as small as its blocking primitive.
package fibersched
