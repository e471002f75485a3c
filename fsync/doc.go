// Package fsync provides synchronization primitives for code running as
// fibersched Tasks: Event, WaitGroup, and Semaphore. All three are
// external collaborators built entirely on fibersched.Fiber.Wait and
// fibersched.Fiber.Notify plus a plain sync.Mutex — package fibersched
// itself has no knowledge of any of them, by design: THE CORE scheduler
// only ever exposes its single blocking primitive, and everything built
// on top of it, including this package, is just a consumer of that
// primitive like any other.
//
// Every exported operation that blocks must be called from the goroutine
// currently executing as a fibersched Fiber (i.e. inside a Task, or on a
// goroutine that has Bind-ed its own Scheduler); calling one from outside
// a Fiber panics.
package fsync
