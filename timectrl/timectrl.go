package timectrl

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components such as
// signal coordinators depend on this abstraction rather than on the concrete
// controller, which keeps them testable.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
	// AfterFunc runs fn on the ticking goroutine once d has elapsed in
	// simulation time. The returned function cancels a pending call.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

type timer struct {
	due      time.Time
	seq      uint64
	fn       func()
	canceled bool
}

// TimeController drives simulation time frame by frame and notifies
// registered listeners once per frame. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// currentTime tracks the current simulation time. It is updated
	// as the controller advances time.
	currentTime time.Time

	timers []*timer
	seq    uint64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the simulation clock to t without firing timers or
// notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// Elapsed returns the simulation time passed since StartTime.
func (tc *TimeController) Elapsed() time.Duration {
	return tc.Now().Sub(tc.StartTime)
}

// After returns a channel that will receive the current simulation time
// after the duration d has elapsed in simulation time. Implements SimClock.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.AfterFunc(d, func() {
		ch <- tc.Now()
	})
	return ch
}

// AfterFunc schedules fn to run during the first Step at or after d from
// now. Implements SimClock.
func (tc *TimeController) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.seq++
	t := &timer{due: tc.currentTime.Add(d), seq: tc.seq, fn: fn}
	tc.timers = append(tc.timers, t)
	return func() {
		tc.mu.Lock()
		t.canceled = true
		tc.mu.Unlock()
	}
}

// Pending returns the number of timers that have not fired yet.
func (tc *TimeController) Pending() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	n := 0
	for _, t := range tc.timers {
		if !t.canceled {
			n++
		}
	}
	return n
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances simulation time by one Tick, fires due timers and then
// notifies listeners. Timers and listeners run on the caller's goroutine
// without the controller lock held, so they may schedule further timers.
func (tc *TimeController) Step() time.Time {
	return tc.Advance(tc.Tick)
}

// Advance is Step with an explicit frame length, for callers whose frames
// vary in duration.
func (tc *TimeController) Advance(d time.Duration) time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(d)
	simTime := tc.currentTime
	due := tc.takeDueLocked(simTime)
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	for _, fn := range listeners {
		fn(simTime)
	}
	return simTime
}

func (tc *TimeController) takeDueLocked(now time.Time) []*timer {
	var due, keep []*timer
	for _, t := range tc.timers {
		switch {
		case t.canceled:
		case !t.due.After(now):
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	tc.timers = keep
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})
	return due
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes or ctx is
// cancelled. A non-positive duration runs until cancellation.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		elapsed := time.Duration(0)

		var tick <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return
			}

			tc.Step()
			elapsed += tc.Tick
		}
	}()
	return done
}
