package fibersched

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Go has no goroutine-local-storage API, so "thread-local" state from
// spec.md (Scheduler.bound, Worker.current) is realised as a
// goroutine-ID-keyed map instead. goroutineID parses the id out of the
// calling goroutine's own stack trace header ("goroutine 123 [running]:"),
// the same technique libraries needing goroutine identity fall back to in
// the absence of a runtime-exposed accessor.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		panic("fibersched: could not parse goroutine id from runtime.Stack output")
	}
	buf = buf[len(prefix):]

	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		panic("fibersched: could not parse goroutine id from runtime.Stack output")
	}

	id, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		panic("fibersched: could not parse goroutine id from runtime.Stack output: " + err.Error())
	}
	return id
}

// goroutineLocal is a minimal goroutine-local slot: a value keyed by the
// calling goroutine's id, guarded by a RWMutex (reads dominate: every
// CurrentFiber/Get call is a read, writes only happen on bind/unbind,
// worker start/stop, and when a fiber goroutine starts).
type goroutineLocal[V any] struct {
	mu sync.RWMutex
	m  map[int64]V
}

func newGoroutineLocal[V any]() *goroutineLocal[V] {
	return &goroutineLocal[V]{m: make(map[int64]V)}
}

func (g *goroutineLocal[V]) get() (V, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.m[goroutineID()]
	return v, ok
}

func (g *goroutineLocal[V]) set(v V) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.m[goroutineID()] = v
}

func (g *goroutineLocal[V]) clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.m, goroutineID())
}
