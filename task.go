package fibersched

// Task is a unit of user work submitted to a Scheduler. A Task runs to
// completion on a single Fiber bound to a single Worker; it may call
// Fiber.Wait (directly, or transitively via a higher-level primitive in
// the fsync subpackage) to block without blocking the underlying OS
// thread. A Task must not retain or reuse the *Fiber it runs on past its
// own return — once a Task returns, its Fiber is recycled and may run an
// unrelated Task next.
type Task func()
