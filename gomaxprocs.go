package fibersched

import (
	"runtime"
	"sync"

	"go.uber.org/automaxprocs/maxprocs"
)

var maxprocsOnce sync.Once

// DefaultWorkerThreadCount returns the worker thread count a Scheduler
// should use when the caller has no stronger opinion: the effective
// GOMAXPROCS after accounting for cgroup CPU quotas. Plain
// runtime.NumCPU() ignores container CPU limits entirely, which is the
// wrong number for a scheduler meant to saturate the CPUs it actually has
// access to; go.uber.org/automaxprocs corrects GOMAXPROCS for that once,
// process-wide, the first time this is called.
func DefaultWorkerThreadCount() int {
	maxprocsOnce.Do(func() {
		// Undo is intentionally discarded: a scheduler process wants the
		// cgroup-aware GOMAXPROCS for its whole lifetime, not just for the
		// duration of this call.
		_, _ = maxprocs.Set()
	})
	return runtime.GOMAXPROCS(0)
}
