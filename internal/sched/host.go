package sched

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Host is the bridge between the scheduler and its embedding environment.
// The scheduler never sleeps or spins on its own: it asks the host to call
// it back, and the host tells it when to give the thread up.
type Host interface {
	// Now returns the current time. Implementations must use a clock
	// with monotonic readings.
	Now() time.Time

	// RequestSoonCallback asks the host to invoke fn at its next
	// opportunity to hand control back. The returned cancel revokes the
	// request if fn has not run yet.
	RequestSoonCallback(fn func()) (cancel func())

	// RequestDelayedCallback asks the host to invoke fn no earlier than
	// delay from now.
	RequestDelayedCallback(fn func(), delay time.Duration) (cancel func())

	// ShouldYieldNow reports whether the running slice has used up its
	// budget, or the host has more urgent work of its own pending.
	ShouldYieldNow() bool
}

// LoopHost delivers scheduler callbacks on one dedicated goroutine, which
// makes that goroutine the logical thread the scheduler runs on. Slices
// are budgeted with a fixed quantum; SignalInputPending trips the yield
// check early regardless of the quantum.
type LoopHost struct {
	quantum      time.Duration
	run          chan func()
	stop         chan struct{}
	stopOnce     sync.Once
	sliceStart   atomic.Int64 // unix nanos of the running slice's start
	inputPending atomic.Bool
}

// NewLoopHost creates a host with the given slice quantum and starts its
// delivery goroutine. Non-positive quantums fall back to the default frame.
func NewLoopHost(quantum time.Duration) *LoopHost {
	if quantum <= 0 {
		quantum = defaultConfig().Frame()
	}
	h := &LoopHost{
		quantum: quantum,
		run:     make(chan func(), 128),
		stop:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *LoopHost) loop() {
	for {
		select {
		case <-h.stop:
			return
		case fn := <-h.run:
			h.inputPending.Store(false)
			h.sliceStart.Store(time.Now().UnixNano())
			fn()
		}
	}
}

// Stop shuts the delivery goroutine down. Pending callbacks are dropped.
func (h *LoopHost) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *LoopHost) Now() time.Time { return time.Now() }

func (h *LoopHost) RequestSoonCallback(fn func()) (cancel func()) {
	var cancelled atomic.Bool
	select {
	case h.run <- func() {
		if !cancelled.Load() {
			fn()
		}
	}:
	case <-h.stop:
	}
	return func() { cancelled.Store(true) }
}

func (h *LoopHost) RequestDelayedCallback(fn func(), delay time.Duration) (cancel func()) {
	if delay < 0 {
		delay = 0
	}
	var cancelled atomic.Bool
	timer := time.AfterFunc(delay, func() {
		select {
		case h.run <- func() {
			if !cancelled.Load() {
				fn()
			}
		}:
		case <-h.stop:
		}
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

func (h *LoopHost) ShouldYieldNow() bool {
	if h.inputPending.Load() {
		return true
	}
	return time.Since(time.Unix(0, h.sliceStart.Load())) >= h.quantum
}

// SignalInputPending tells the host that urgent external work arrived; the
// next yield check trips immediately. The flag clears when the next slice
// starts.
func (h *LoopHost) SignalInputPending() {
	h.inputPending.Store(true)
}

// ManualHost is a deterministic Host for tests: time only moves when
// Advance is called, soon-callbacks only fire on Step or FlushSoon, and the
// yield predicate is a flag. It is not safe for concurrent use; it exists
// so single-goroutine tests can drive the scheduler exactly.
type ManualHost struct {
	now      time.Time
	yieldNow bool
	soon     []*manualCallback
	timers   []*manualCallback
}

type manualCallback struct {
	at        time.Time
	fn        func()
	cancelled bool
}

// NewManualHost starts the fake clock at the Unix epoch.
func NewManualHost() *ManualHost {
	return &ManualHost{now: time.Unix(0, 0)}
}

func (h *ManualHost) Now() time.Time { return h.now }

func (h *ManualHost) ShouldYieldNow() bool { return h.yieldNow }

// SetYield sets the value ShouldYieldNow reports.
func (h *ManualHost) SetYield(v bool) { h.yieldNow = v }

func (h *ManualHost) RequestSoonCallback(fn func()) (cancel func()) {
	cb := &manualCallback{fn: fn}
	h.soon = append(h.soon, cb)
	return func() { cb.cancelled = true }
}

func (h *ManualHost) RequestDelayedCallback(fn func(), delay time.Duration) (cancel func()) {
	if delay < 0 {
		delay = 0
	}
	cb := &manualCallback{at: h.now.Add(delay), fn: fn}
	h.timers = append(h.timers, cb)
	return func() { cb.cancelled = true }
}

// Step fires the oldest pending soon-callback, reporting whether one ran.
func (h *ManualHost) Step() bool {
	for len(h.soon) > 0 {
		cb := h.soon[0]
		h.soon = h.soon[1:]
		if cb.cancelled {
			continue
		}
		cb.fn()
		return true
	}
	return false
}

// FlushSoon fires every soon-callback pending at the time of the call.
// Callbacks requested while flushing wait for the next call, so a loop
// that keeps rescheduling itself cannot spin forever here.
func (h *ManualHost) FlushSoon() {
	pending := h.soon
	h.soon = nil
	for _, cb := range pending {
		if !cb.cancelled {
			cb.fn()
		}
	}
}

// Advance moves the clock forward and fires delayed callbacks that come
// due, earliest first.
func (h *ManualHost) Advance(d time.Duration) {
	h.now = h.now.Add(d)
	for {
		idx := -1
		for i, cb := range h.timers {
			if cb.cancelled {
				continue
			}
			if cb.at.After(h.now) {
				continue
			}
			if idx < 0 || cb.at.Before(h.timers[idx].at) {
				idx = i
			}
		}
		if idx < 0 {
			h.compactTimers()
			return
		}
		cb := h.timers[idx]
		h.timers = append(h.timers[:idx], h.timers[idx+1:]...)
		cb.fn()
	}
}

// PendingSoon reports how many live soon-callbacks are queued.
func (h *ManualHost) PendingSoon() int {
	n := 0
	for _, cb := range h.soon {
		if !cb.cancelled {
			n++
		}
	}
	return n
}

// PendingTimers returns the due times of live delayed callbacks, earliest
// first.
func (h *ManualHost) PendingTimers() []time.Time {
	var out []time.Time
	for _, cb := range h.timers {
		if !cb.cancelled {
			out = append(out, cb.at)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (h *ManualHost) compactTimers() {
	live := h.timers[:0]
	for _, cb := range h.timers {
		if !cb.cancelled {
			live = append(live, cb)
		}
	}
	h.timers = live
}
