package sched

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Watchdog detects a host that accepted a wakeup request but never
// delivered it. The scheduler cannot recover from that on its own, but it
// can make the hang visible instead of going silently idle.
type Watchdog struct {
	s         *Scheduler
	threshold time.Duration
	log       logrus.FieldLogger
}

// NewWatchdog creates a watchdog over s. Non-positive thresholds fall back
// to the default stall threshold; a nil logger falls back to the standard
// one.
func NewWatchdog(s *Scheduler, threshold time.Duration, log logrus.FieldLogger) *Watchdog {
	if threshold <= 0 {
		threshold = time.Duration(defaultConfig().StallMS) * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watchdog{s: s, threshold: threshold, log: log}
}

// Check reports whether the host is overdue on a requested callback as of
// now, logging a warning when it is. Call it from a ticker, a test, or any
// vantage point outside the scheduler's own thread.
func (w *Watchdog) Check(now time.Time) bool {
	at, ok := w.s.PendingRequestSince()
	if !ok {
		return false
	}
	overdue := now.Sub(at)
	if overdue < w.threshold {
		return false
	}
	w.log.WithFields(logrus.Fields{
		"requested_at": at,
		"overdue":      overdue,
	}).Warn("host has not delivered a requested callback")
	return true
}
