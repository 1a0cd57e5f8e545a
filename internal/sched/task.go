package sched

import "time"

// PriorityLevel classifies how urgent a task is. Each level maps to a
// timeout (see Config); a lower timeout means the task expires sooner and
// therefore sorts earlier in the ready queue. Priority is encoded entirely
// through the expiration-time sort key, so an old low-priority task will
// eventually out-rank a fresh high-priority one instead of starving.
type PriorityLevel int

const (
	ImmediatePriority PriorityLevel = iota + 1
	UserBlockingPriority
	NormalPriority
	LowPriority
	IdlePriority
)

func (p PriorityLevel) String() string {
	switch p {
	case ImmediatePriority:
		return "Immediate"
	case UserBlockingPriority:
		return "UserBlocking"
	case NormalPriority:
		return "Normal"
	case LowPriority:
		return "Low"
	case IdlePriority:
		return "Idle"
	default:
		return "Unknown"
	}
}

// valid reports whether p is one of the five defined levels.
func (p PriorityLevel) valid() bool {
	return p >= ImmediatePriority && p <= IdlePriority
}

// TaskID uniquely identifies a task. IDs increase monotonically per
// scheduler and break ties between equal sort keys, which keeps ordering
// FIFO among tasks scheduled with the same priority and delay.
type TaskID uint64

// Work is one unit of schedulable work. expired reports whether the task's
// expiration passed before it ran; expired work is never interrupted again,
// so it should run to a sensible stopping point rather than keep checking
// ShouldYield.
type Work func(expired bool) (Result, error)

// Result tells the work loop whether a task finished or wants to resume.
type Result struct {
	next Work
}

// Done marks the task as finished.
func Done() Result { return Result{} }

// Continue re-enqueues the task with next as its work. The task keeps its
// original expiration, so resuming does not reset its place in line.
func Continue(next Work) Result { return Result{next: next} }

// Continues reports whether the result carries a continuation.
func (r Result) Continues() bool { return r.next != nil }

// Next returns the carried continuation, nil when the work is done.
func (r Result) Next() Work { return r.next }

// Task is one schedulable unit plus its queue bookkeeping. Tasks are
// created by ScheduleCallback; the handle is opaque to callers and only
// useful for CancelCallback.
type Task struct {
	ID       TaskID
	Priority PriorityLevel

	// work is cleared once the task is cancelled or has run to
	// completion. A task with nil work is dead and is dropped lazily the
	// next time it surfaces at the top of a heap.
	work Work

	// cancelled distinguishes a mid-execution cancel (work is already
	// cleared while running) so the loop knows to drop any continuation.
	cancelled bool

	startTime      time.Time // when the task becomes eligible to run
	expirationTime time.Time // startTime + timeout(Priority)

	// sortIndex is the heap key: startTime while the task sits in the
	// timer queue, expirationTime once it moves to the ready queue. It
	// is recomputed on every queue move, never left stale.
	sortIndex time.Time
}
