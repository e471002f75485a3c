package fibersched

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/KimMachineGun/automemlimit/memlimit"
)

var memlimitOnce sync.Once

func ensureMemLimitSet() {
	memlimitOnce.Do(func() {
		// Ignored error: when no cgroup memory limit is discoverable (e.g.
		// running outside a container), automemlimit leaves GOMEMLIMIT
		// untouched and memoryPressure below degrades to "no pressure".
		_, _ = memlimit.SetGoMemLimitWithOpts()
	})
}

// memoryPressure returns the fraction of the process's effective soft
// memory limit (GOMEMLIMIT, set cgroup-aware by automemlimit) currently in
// use, in [0, 1]. Used only by WithMemoryAwareSpin to shorten a worker's
// spin-for-work budget as the process approaches its ceiling — spinning
// burns CPU without freeing memory, so under pressure a worker should
// prefer parking, which lets its idle fiber goroutines' stacks shrink.
//
// Returns 0 if no memory limit is set (debug.SetMemoryLimit(-1) reports
// math.MaxInt64, the runtime's "no limit" sentinel).
func memoryPressure() float64 {
	ensureMemLimitSet()

	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	p := float64(m.HeapAlloc) / float64(limit)
	if p > 1 {
		return 1
	}
	return p
}
