package sched

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// EventKind represents the type of task lifecycle transition.
type EventKind int

const (
	EventScheduled EventKind = iota // entered the ready queue
	EventDelayed                    // entered the timer queue
	EventMatured                    // moved from the timer queue to the ready queue
	EventStarted
	EventYielded // returned a continuation, re-entered the ready queue
	EventCompleted
	EventErrored
	EventCancelled
	EventDropped // cancelled task lazily discarded off a heap
)

func (k EventKind) String() string {
	switch k {
	case EventScheduled:
		return "Scheduled"
	case EventDelayed:
		return "Delayed"
	case EventMatured:
		return "Matured"
	case EventStarted:
		return "Started"
	case EventYielded:
		return "Yielded"
	case EventCompleted:
		return "Completed"
	case EventErrored:
		return "Errored"
	case EventCancelled:
		return "Cancelled"
	case EventDropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// Event records one task lifecycle transition.
type Event struct {
	Time     time.Time
	Kind     EventKind
	TaskID   TaskID
	Priority PriorityLevel
	Expired  bool // the task ran past its expiration
	Err      error
}

// EnableCSVTrace opens the given file path for CSV logging of events.
// Must be called before any scheduling.
func (s *Scheduler) EnableCSVTrace(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create trace file")
	}
	w := csv.NewWriter(f)

	// write header
	w.Write([]string{"timestamp", "event", "task_id", "priority", "expired", "error"})
	w.Flush()

	s.mu.Lock()
	s.csvFile = f
	s.csvWriter = w
	s.mu.Unlock()
	return nil
}

// CloseTrace flushes and closes the CSV trace file, if one is open.
func (s *Scheduler) CloseTrace() error {
	s.mu.Lock()
	f, w := s.csvFile, s.csvWriter
	s.csvFile, s.csvWriter = nil, nil
	s.mu.Unlock()

	if f == nil {
		return nil
	}
	w.Flush()
	return f.Close()
}

// Events exposes a read-only stream of lifecycle events (optional
// consumers). A slow consumer loses events rather than stalling the loop.
func (s *Scheduler) Events() <-chan Event { return s.events }

// emitLocked records ev on the trace channel and CSV writer. Callers hold
// s.mu.
func (s *Scheduler) emitLocked(ev Event) {
	if s.events != nil {
		select {
		case s.events <- ev:
		default:
		}
	}

	if s.csvWriter != nil {
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			ev.Priority.String(),
			strconv.FormatBool(ev.Expired),
			errText,
		}
		s.csvWriter.Write(rec)
		s.csvWriter.Flush()
	}
}
