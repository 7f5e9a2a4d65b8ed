// Package testutil contains helpers shared by package tests.
package testutil

import (
	"slices"
	"sync"
	"time"

	"github.com/ghettovoice/sipstack/actor"
	"github.com/ghettovoice/sipstack/event"
)

// ManualScheduler is an [actor.Scheduler] driven by a virtual clock.
// Nothing is delivered until [ManualScheduler.Advance] or [ManualScheduler.Fire] is called.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	entries []*ManualTimer
}

// NewManualScheduler creates a scheduler with the clock at zero.
func NewManualScheduler() *ManualScheduler { return new(ManualScheduler) }

// ManualTimer is a delivery recorded by [ManualScheduler].
type ManualTimer struct {
	sched *ManualScheduler
	seq   uint64

	// At is the virtual deadline.
	At time.Duration
	// Delay is the requested delay.
	Delay time.Duration
	Event event.Event
	Dst   actor.Ref

	fired,
	cancelled bool
}

// Name returns the timer name if the event is a timer token.
func (t *ManualTimer) Name() event.SipTimer {
	if tmr, ok := t.Event.(event.Timer); ok {
		return tmr.Timer
	}
	return ""
}

// Cancel implements [actor.Cancellable].
func (t *ManualTimer) Cancel() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

func (t *ManualTimer) Cancelled() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	return t.cancelled
}

func (t *ManualTimer) Fired() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	return t.fired
}

// Schedule implements [actor.Scheduler].
func (s *ManualScheduler) Schedule(delay time.Duration, ev event.Event, dst actor.Ref) actor.Cancellable {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &ManualTimer{
		sched: s,
		seq:   s.seq,
		At:    s.now + max(delay, 0),
		Delay: delay,
		Event: ev,
		Dst:   dst,
	}
	s.entries = append(s.entries, t)
	return t
}

// Now returns the virtual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the clock forward and delivers every due entry in deadline order.
// Entries scheduled by the receivers are delivered too if they become due.
// It returns the number of delivered events.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + max(d, 0)
	s.mu.Unlock()

	var n int
	for {
		s.mu.Lock()
		t := s.nextDue(target)
		if t == nil {
			s.now = target
			s.mu.Unlock()
			return n
		}
		s.now = max(s.now, t.At)
		t.fired = true
		s.mu.Unlock()

		t.Dst.Tell(t.Event)
		n++
	}
}

func (s *ManualScheduler) nextDue(target time.Duration) *ManualTimer {
	var next *ManualTimer
	for _, t := range s.entries {
		if t.fired || t.cancelled || t.At > target {
			continue
		}
		if next == nil || t.At < next.At || (t.At == next.At && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// Fire delivers the first pending timer with the name regardless of its deadline.
// The clock is moved to the timer deadline if it is in the future.
func (s *ManualScheduler) Fire(name event.SipTimer) bool {
	s.mu.Lock()
	var tmr *ManualTimer
	for _, t := range s.entries {
		if !t.fired && !t.cancelled && t.Name() == name {
			tmr = t
			break
		}
	}
	if tmr == nil {
		s.mu.Unlock()
		return false
	}
	s.now = max(s.now, tmr.At)
	tmr.fired = true
	s.mu.Unlock()

	tmr.Dst.Tell(tmr.Event)
	return true
}

// Pending returns entries that were neither delivered nor cancelled.
func (s *ManualScheduler) Pending() []*ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(s.entries), func(t *ManualTimer) bool {
		return t.fired || t.cancelled
	})
}

// PendingNames returns names of the pending timers.
func (s *ManualScheduler) PendingNames() []event.SipTimer {
	var names []event.SipTimer
	for _, t := range s.Pending() {
		if n := t.Name(); n != "" {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// Last returns the most recent entry scheduled for the timer name.
func (s *ManualScheduler) Last(name event.SipTimer) (*ManualTimer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Name() == name {
			return s.entries[i], true
		}
	}
	return nil, false
}

// Count returns how many times the timer was scheduled.
func (s *ManualScheduler) Count(name event.SipTimer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, t := range s.entries {
		if t.Name() == name {
			n++
		}
	}
	return n
}
