package sched

import (
	"encoding/csv"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Scheduler interleaves units of work of differing urgency on one logical
// thread. Work runs in expiration order off a ready heap; delayed work
// waits in a timer heap until its start time. The scheduler never holds
// the thread past the host's yield signal unless the task at the front is
// already overdue, which bounds starvation by each level's timeout.
//
// The model is single-logical-thread, but a Go host delivers callbacks on
// its own goroutine while callers may schedule from others, so a mutex
// guards the heaps and flags. It is never held while task work runs;
// Schedule and Cancel calls made from inside work are plain nested calls.
type Scheduler struct {
	mu sync.Mutex

	host    Host
	cfg     Config
	log     logrus.FieldLogger
	onError ErrorHandler

	taskQueue  *taskHeap // eligible now, keyed by expiration time
	timerQueue *taskHeap // not yet eligible, keyed by start time

	nextID TaskID

	currentTask     *Task
	currentPriority PriorityLevel

	hostCallbackScheduled bool
	cancelHostCallback    func()
	hostTimeoutScheduled  bool
	cancelHostTimeout     func()
	performingWork        bool

	// requestedAt is when the pending soon-callback was asked for; zero
	// when none is outstanding. The watchdog reads it to spot a host
	// that went quiet.
	requestedAt time.Time

	events    chan Event
	csvFile   *os.File
	csvWriter *csv.Writer
}

// New creates a Scheduler. With no options it runs on a fresh LoopHost
// with default config and the logrus standard logger.
func New(opts ...Option) *Scheduler {
	o := NewOptions(opts...)

	buffer := o.Config.EventBuffer
	if buffer <= 0 {
		buffer = defaultConfig().EventBuffer
	}
	s := &Scheduler{
		host:            o.Host,
		cfg:             o.Config,
		log:             o.Logger,
		onError:         o.OnError,
		taskQueue:       newTaskHeap(),
		timerQueue:      newTaskHeap(),
		currentPriority: NormalPriority,
		events:          make(chan Event, buffer),
	}
	if s.onError == nil {
		s.onError = func(t *Task, err error) {
			s.log.WithFields(logrus.Fields{
				"task":     t.ID,
				"priority": t.Priority.String(),
			}).WithError(err).Error("task failed")
		}
	}
	return s
}

// ScheduleOption configures a single ScheduleCallback call.
type ScheduleOption func(*scheduleOptions)

type scheduleOptions struct {
	delay time.Duration
}

// WithDelay defers the task's eligibility by d. Negative delays clamp to
// zero.
func WithDelay(d time.Duration) ScheduleOption {
	return func(o *scheduleOptions) { o.delay = d }
}

// ScheduleCallback admits work at the given priority and returns its
// handle. Unknown priority levels normalize to Normal; priority is a hint,
// not a correctness requirement, so bad values degrade instead of failing.
func (s *Scheduler) ScheduleCallback(priority PriorityLevel, work Work, opts ...ScheduleOption) *Task {
	var so scheduleOptions
	for _, opt := range opts {
		opt(&so)
	}
	if so.delay < 0 {
		so.delay = 0
	}
	if !priority.valid() {
		priority = NormalPriority
	}

	s.mu.Lock()
	now := s.host.Now()
	startTime := now.Add(so.delay)

	s.nextID++
	t := &Task{
		ID:             s.nextID,
		Priority:       priority,
		work:           work,
		startTime:      startTime,
		expirationTime: startTime.Add(s.cfg.timeout(priority)),
	}

	if startTime.After(now) {
		// Not eligible yet; park it in the timer queue.
		t.sortIndex = t.startTime
		s.timerQueue.push(t)
		if s.taskQueue.empty() && t == s.timerQueue.peek() {
			// t is now the earliest pending timer, so the wakeup
			// must fire for it, not whatever was earliest before.
			if s.hostTimeoutScheduled {
				s.cancelDelayedLocked()
			}
			s.requestDelayedLocked(startTime.Sub(now))
		}
		s.emitLocked(Event{Time: now, Kind: EventDelayed, TaskID: t.ID, Priority: t.Priority})
	} else {
		t.sortIndex = t.expirationTime
		s.taskQueue.push(t)
		if !s.hostCallbackScheduled && !s.performingWork {
			s.hostCallbackScheduled = true
			s.requestSoonLocked(now)
		}
		s.emitLocked(Event{Time: now, Kind: EventScheduled, TaskID: t.ID, Priority: t.Priority})
	}
	s.mu.Unlock()
	return t
}

// CancelCallback prevents any future run of t, including resumption of a
// continuation. Work that is already mid-execution is not interrupted.
// Cancelling twice, or cancelling a completed task, is a no-op. The task
// stays where it is until a pop finds the cleared work and drops it, so
// cancellation never costs a heap scan.
func (s *Scheduler) CancelCallback(t *Task) {
	if t == nil {
		return
	}
	s.mu.Lock()
	if t.work != nil || (s.currentTask == t && !t.cancelled) {
		t.work = nil
		t.cancelled = true
		s.emitLocked(Event{Time: s.host.Now(), Kind: EventCancelled, TaskID: t.ID, Priority: t.Priority})
	}
	s.mu.Unlock()
}

// ShouldYield lets in-flight work ask whether it ought to return a
// continuation and give the thread back.
func (s *Scheduler) ShouldYield() bool {
	return s.host.ShouldYieldNow()
}

// CurrentPriorityLevel returns the priority of the task currently
// executing, or the ambient level set by RunWithPriority, or Normal.
func (s *Scheduler) CurrentPriorityLevel() PriorityLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPriority
}

// RunWithPriority invokes fn with the ambient priority set to p and the
// previous value restored afterward, so scheduling code inside fn can pick
// the level up via CurrentPriorityLevel instead of threading it through.
func (s *Scheduler) RunWithPriority(p PriorityLevel, fn func()) {
	if !p.valid() {
		p = NormalPriority
	}
	s.mu.Lock()
	prev := s.currentPriority
	s.currentPriority = p
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.currentPriority = prev
		s.mu.Unlock()
	}()
	fn()
}

// RunWithPriority runs fn under the given ambient priority and returns its
// result. Methods cannot be generic, hence the package-level shape.
func RunWithPriority[T any](s *Scheduler, p PriorityLevel, fn func() T) T {
	var out T
	s.RunWithPriority(p, func() { out = fn() })
	return out
}

// Shutdown revokes any outstanding host callback requests, so the host
// stops invoking the scheduler. Queued tasks are left in place; scheduling
// new eligible work wakes the loop back up.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.hostCallbackScheduled {
		s.hostCallbackScheduled = false
		s.requestedAt = time.Time{}
		if s.cancelHostCallback != nil {
			s.cancelHostCallback()
			s.cancelHostCallback = nil
		}
	}
	if s.hostTimeoutScheduled {
		s.cancelDelayedLocked()
	}
	s.mu.Unlock()
}

// PendingRequestSince reports when the outstanding soon-callback request
// was made, if one has not been delivered yet.
func (s *Scheduler) PendingRequestSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestedAt, !s.requestedAt.IsZero()
}

// Len reports how many live tasks sit in the ready and timer queues.
// Cancelled-but-undropped entries are not counted.
func (s *Scheduler) Len() (ready, timers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.taskQueue.values() {
		if t.work != nil {
			ready++
		}
	}
	for _, t := range s.timerQueue.values() {
		if t.work != nil {
			timers++
		}
	}
	return ready, timers
}

// advanceTimersLocked moves matured timers into the ready queue, dropping
// cancelled entries along the way. Callers hold s.mu.
func (s *Scheduler) advanceTimersLocked(now time.Time) {
	for {
		t := s.timerQueue.peek()
		if t == nil {
			return
		}
		if t.work == nil {
			s.timerQueue.pop()
			s.emitLocked(Event{Time: now, Kind: EventDropped, TaskID: t.ID, Priority: t.Priority})
			continue
		}
		if t.startTime.After(now) {
			return
		}
		s.timerQueue.pop()
		t.sortIndex = t.expirationTime
		s.taskQueue.push(t)
		s.emitLocked(Event{Time: now, Kind: EventMatured, TaskID: t.ID, Priority: t.Priority})
	}
}

// handleDelayedWakeup is the host's delayed-callback entry point: it
// matures timers and arranges the next invocation, soon or delayed.
func (s *Scheduler) handleDelayedWakeup() {
	s.mu.Lock()
	s.hostTimeoutScheduled = false
	now := s.host.Now()
	s.advanceTimersLocked(now)

	if !s.hostCallbackScheduled && !s.performingWork {
		if !s.taskQueue.empty() {
			s.hostCallbackScheduled = true
			s.requestSoonLocked(now)
		} else if first := s.timerQueue.peek(); first != nil {
			s.requestDelayedLocked(first.startTime.Sub(now))
		}
	}
	s.mu.Unlock()
}

// flushWork is the host's soon-callback entry point: it drains ready work
// until the host wants the thread back, then reschedules itself if work
// remains, or arms a timer wakeup for the earliest pending timer.
func (s *Scheduler) flushWork() {
	s.mu.Lock()
	s.hostCallbackScheduled = false
	s.requestedAt = time.Time{}
	if s.hostTimeoutScheduled {
		// The loop re-arms the wakeup below if it is still needed.
		s.cancelDelayedLocked()
	}

	s.performingWork = true
	prev := s.currentPriority

	hasMore := s.workLoopLocked()

	s.currentPriority = prev
	s.performingWork = false

	if hasMore {
		s.hostCallbackScheduled = true
		s.requestSoonLocked(s.host.Now())
	} else if first := s.timerQueue.peek(); first != nil {
		s.requestDelayedLocked(first.startTime.Sub(s.host.Now()))
	}
	s.mu.Unlock()
}

// workLoopLocked runs ready tasks in expiration order. It returns true
// when ready work remains; the front task is then deliberately left
// unpopped for the next slice. A task is forced through the yield signal
// only once its expiration has passed. Called with s.mu held; the lock is
// released around each work invocation.
func (s *Scheduler) workLoopLocked() bool {
	now := s.host.Now()
	s.advanceTimersLocked(now)

	for {
		t := s.taskQueue.peek()
		if t == nil {
			return false
		}
		if t.work == nil {
			s.taskQueue.pop()
			s.emitLocked(Event{Time: now, Kind: EventDropped, TaskID: t.ID, Priority: t.Priority})
			continue
		}
		expired := !t.expirationTime.After(now)
		if !expired && s.host.ShouldYieldNow() {
			// Not yet overdue, so it can wait for the next slice.
			return true
		}

		s.taskQueue.pop()
		work := t.work
		t.work = nil
		s.currentTask = t
		s.currentPriority = t.Priority
		s.emitLocked(Event{Time: now, Kind: EventStarted, TaskID: t.ID, Priority: t.Priority, Expired: expired})

		s.mu.Unlock()
		res, err := runWork(work, expired)
		if err != nil {
			s.onError(t, err)
		}
		s.mu.Lock()

		now = s.host.Now()
		s.currentTask = nil

		switch {
		case err != nil:
			s.emitLocked(Event{Time: now, Kind: EventErrored, TaskID: t.ID, Priority: t.Priority, Err: err})
		case t.cancelled:
			// Cancelled mid-execution; any continuation is dropped.
		case res.next != nil:
			// Unfinished. It resumes at the same place in line: the
			// sort index keeps the original expiration.
			t.work = res.next
			s.taskQueue.push(t)
			s.emitLocked(Event{Time: now, Kind: EventYielded, TaskID: t.ID, Priority: t.Priority})
		default:
			s.emitLocked(Event{Time: now, Kind: EventCompleted, TaskID: t.ID, Priority: t.Priority})
		}

		// Execution may have taken long enough to mature new timers.
		s.advanceTimersLocked(now)
	}
}

// runWork invokes one unit of work, converting a panic into an error so a
// misbehaving task cannot take the loop down with it.
func runWork(work Work, expired bool) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Done()
			err = errors.Errorf("task panicked: %v", r)
		}
	}()
	return work(expired)
}

func (s *Scheduler) requestSoonLocked(now time.Time) {
	s.requestedAt = now
	s.cancelHostCallback = s.host.RequestSoonCallback(s.flushWork)
}

func (s *Scheduler) requestDelayedLocked(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.hostTimeoutScheduled = true
	s.cancelHostTimeout = s.host.RequestDelayedCallback(s.handleDelayedWakeup, d)
}

func (s *Scheduler) cancelDelayedLocked() {
	s.hostTimeoutScheduled = false
	if s.cancelHostTimeout != nil {
		s.cancelHostTimeout()
		s.cancelHostTimeout = nil
	}
}
