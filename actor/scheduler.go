package actor

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/log"
)

// HeapSchedulerOptions are the options of a [HeapScheduler].
type HeapSchedulerOptions struct {
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *HeapSchedulerOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// HeapScheduler is a [Scheduler] backed by a min-heap of deadlines and a
// single goroutine. Due events are delivered in deadline order, events with
// equal deadlines in scheduling order.
// It is meant to be shared by all actors of a process.
type HeapScheduler struct {
	log *slog.Logger

	mu     sync.Mutex
	items  schedHeap
	seq    uint64
	closed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewHeapScheduler creates and starts a new [HeapScheduler].
// Options are optional, if nil, default values are used (see [HeapSchedulerOptions]).
func NewHeapScheduler(opts *HeapSchedulerOptions) *HeapScheduler {
	s := &HeapScheduler{
		log:  opts.log(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Schedule implements [Scheduler].
// On a closed scheduler the event is never delivered.
func (s *HeapScheduler) Schedule(delay time.Duration, ev event.Event, dst Ref) Cancellable {
	ent := &schedEntry{
		sched: s,
		at:    time.Now().Add(max(delay, 0)),
		ev:    ev,
		dst:   dst,
		idx:   -1,
	}

	s.mu.Lock()
	if s.closed {
		ent.dropped = true
		s.mu.Unlock()
		s.log.LogAttrs(context.Background(), slog.LevelDebug, "scheduler closed, event discarded", slog.Any("event", ev))
		return ent
	}
	s.seq++
	ent.seq = s.seq
	heap.Push(&s.items, ent)
	first := ent.idx == 0
	s.mu.Unlock()

	if first {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return ent
}

// Len returns the number of pending deliveries.
func (s *HeapScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close stops the scheduler. Pending deliveries are discarded.
func (s *HeapScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ent := range s.items {
		ent.idx = -1
		ent.dropped = true
	}
	s.items = nil
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}

func (s *HeapScheduler) run() {
	defer s.wg.Done()

	tmr := time.NewTimer(time.Hour)
	tmr.Stop()
	defer tmr.Stop()

	var due []*schedEntry
	for {
		s.mu.Lock()
		now := time.Now()
		for len(s.items) > 0 && !s.items[0].at.After(now) {
			due = append(due, heap.Pop(&s.items).(*schedEntry)) //nolint:forcetypeassert
		}
		next := time.Duration(-1)
		if len(s.items) > 0 {
			next = s.items[0].at.Sub(now)
		}
		s.mu.Unlock()

		for i, ent := range due {
			ent.dst.Tell(ent.ev)
			due[i] = nil
		}
		due = due[:0]

		if next >= 0 {
			tmr.Reset(next)
		} else {
			tmr.Stop()
		}

		select {
		case <-tmr.C:
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

type schedEntry struct {
	sched *HeapScheduler
	at    time.Time
	seq   uint64
	ev    event.Event
	dst   Ref
	// idx is the heap position, -1 once the entry left the heap.
	idx int
	// dropped entries were discarded by a closed scheduler and are never delivered.
	dropped,
	cancelled bool
}

// Cancel implements [Cancellable].
func (e *schedEntry) Cancel() bool {
	s := e.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case e.cancelled:
		return false
	case e.idx >= 0:
		heap.Remove(&s.items, e.idx)
	case !e.dropped:
		// already popped for delivery
		return false
	}
	e.cancelled = true
	return true
}

type schedHeap []*schedEntry

func (h schedHeap) Len() int { return len(h) }

func (h schedHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h schedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *schedHeap) Push(x any) {
	ent := x.(*schedEntry) //nolint:forcetypeassert
	ent.idx = len(*h)
	*h = append(*h, ent)
}

func (h *schedHeap) Pop() any {
	old := *h
	n := len(old)
	ent := old[n-1]
	old[n-1] = nil
	ent.idx = -1
	*h = old[:n-1]
	return ent
}
