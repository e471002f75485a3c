package fibersched

import (
	"container/heap"
	"time"
)

// waitingSet is spec.md §3/§4.3's WaitingSet: an ordered set of
// (deadline, Fiber) pairs supporting earliest-deadline extraction and
// O(log n) targeted removal, plus a parallel index for membership tests.
//
// The original orders entries by (deadline, fiber pointer), using the
// pointer only as a tie-breaker for determinism. A bare Go pointer is not
// a meaningful total order (addresses are not stable the way a C++
// allocator's are treated here), so waitingSet instead tie-breaks on a
// monotonically increasing sequence number assigned at add() time — the
// same determinism guarantee, assigned instead of observed.
//
// Backed by container/heap, the same library the teacher's own stream.go
// ParallelMap uses (indexedResultHeap) to keep a small, frequently mutated
// ordered set of pending items — the identical role a WaitingSet plays
// here.
type waitingSet struct {
	h       []waitingEntry
	index   map[*Fiber]int
	nextSeq uint64
}

type waitingEntry struct {
	deadline time.Time
	fiber    *Fiber
}

func newWaitingSet() *waitingSet {
	return &waitingSet{index: make(map[*Fiber]int)}
}

// add inserts fiber with the given deadline. Precondition: fiber is not
// already present in the set.
func (s *waitingSet) add(deadline time.Time, fiber *Fiber) {
	if _, ok := s.index[fiber]; ok {
		panic("fibersched: waitingSet.add called with fiber already present")
	}
	s.nextSeq++
	fiber.seq = s.nextSeq
	heap.Push(s, waitingEntry{deadline: deadline, fiber: fiber})
}

// erase removes fiber from the set. Idempotent: a no-op if fiber is not
// present.
func (s *waitingSet) erase(fiber *Fiber) {
	idx, ok := s.index[fiber]
	if !ok {
		return
	}
	heap.Remove(s, idx)
}

// take returns and removes any fiber whose deadline has elapsed by now, or
// nil if none has. Call repeatedly to drain all expired entries.
func (s *waitingSet) take(now time.Time) *Fiber {
	if len(s.h) == 0 || s.h[0].deadline.After(now) {
		return nil
	}
	return heap.Pop(s).(waitingEntry).fiber
}

// next returns the smallest deadline in the set. Undefined if the set is
// empty; callers must check Empty() or Len() first.
func (s *waitingSet) next() time.Time {
	return s.h[0].deadline
}

func (s *waitingSet) contains(fiber *Fiber) bool {
	_, ok := s.index[fiber]
	return ok
}

func (s *waitingSet) Len() int    { return len(s.h) }
func (s *waitingSet) Empty() bool { return len(s.h) == 0 }

// heap.Interface, with the fiber->index map kept in sync on every mutation
// so erase() stays O(log n).

func (s *waitingSet) Less(i, j int) bool {
	if s.h[i].deadline.Equal(s.h[j].deadline) {
		return s.h[i].fiber.seq < s.h[j].fiber.seq
	}
	return s.h[i].deadline.Before(s.h[j].deadline)
}

func (s *waitingSet) Swap(i, j int) {
	s.h[i], s.h[j] = s.h[j], s.h[i]
	s.index[s.h[i].fiber] = i
	s.index[s.h[j].fiber] = j
}

func (s *waitingSet) Push(x any) {
	e := x.(waitingEntry)
	s.index[e.fiber] = len(s.h)
	s.h = append(s.h, e)
}

func (s *waitingSet) Pop() any {
	old := s.h
	n := len(old)
	e := old[n-1]
	s.h = old[:n-1]
	delete(s.index, e.fiber)
	return e
}
