package sched

import (
	"github.com/emirpasic/gods/trees/binaryheap"
)

// bySortIndex orders tasks by sortIndex ascending, then by ID ascending so
// equal keys run in submission order.
func bySortIndex(a, b interface{}) int {
	ta, tb := a.(*Task), b.(*Task)
	switch {
	case ta.sortIndex.Before(tb.sortIndex):
		return -1
	case ta.sortIndex.After(tb.sortIndex):
		return 1
	case ta.ID < tb.ID:
		return -1
	case ta.ID > tb.ID:
		return 1
	default:
		return 0
	}
}

// taskHeap is a min-heap of tasks keyed by (sortIndex, ID). It is the only
// place heap internals are touched; the scheduler goes through push, peek
// and pop alone.
type taskHeap struct {
	h *binaryheap.Heap
}

func newTaskHeap() *taskHeap {
	return &taskHeap{h: binaryheap.NewWith(bySortIndex)}
}

func (q *taskHeap) push(t *Task) { q.h.Push(t) }

// peek returns the minimum task without removing it, or nil when empty.
func (q *taskHeap) peek() *Task {
	v, ok := q.h.Peek()
	if !ok {
		return nil
	}
	return v.(*Task)
}

// pop removes and returns the minimum task, or nil when empty.
func (q *taskHeap) pop() *Task {
	v, ok := q.h.Pop()
	if !ok {
		return nil
	}
	return v.(*Task)
}

func (q *taskHeap) len() int { return q.h.Size() }

func (q *taskHeap) empty() bool { return q.h.Empty() }

// values returns the tasks in backing-array order, root first.
func (q *taskHeap) values() []*Task {
	vs := q.h.Values()
	out := make([]*Task, len(vs))
	for i, v := range vs {
		out[i] = v.(*Task)
	}
	return out
}
