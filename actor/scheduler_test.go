package actor_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ghettovoice/sipstack/actor"
	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/internal/testutil"
	"github.com/ghettovoice/sipstack/log"
)

func newHeapScheduler(t *testing.T) *actor.HeapScheduler {
	t.Helper()

	s := actor.NewHeapScheduler(&actor.HeapSchedulerOptions{Log: log.Noop})
	t.Cleanup(s.Close)
	return s
}

func TestHeapScheduler_DeadlineOrder(t *testing.T) {
	t.Parallel()

	s := newHeapScheduler(t)
	rec := testutil.NewRecorder(nil)

	s.Schedule(60*time.Millisecond, event.Timer{Timer: event.TimerH}, rec)
	s.Schedule(20*time.Millisecond, event.Timer{Timer: event.TimerG}, rec)
	s.Schedule(40*time.Millisecond, event.Timer{Timer: event.TimerI}, rec)
	s.Schedule(40*time.Millisecond, event.Timer{Timer: event.TimerL}, rec)

	got := timerNames(rec.WaitLen(t, 4, 2*time.Second))
	want := []event.SipTimer{event.TimerG, event.TimerI, event.TimerL, event.TimerH}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivery order mismatch (-want +got):\n%s", diff)
	}
	if n := s.Len(); n != 0 {
		t.Errorf("s.Len() = %d, want 0", n)
	}
}

func TestHeapScheduler_CancelBeforeFire(t *testing.T) {
	t.Parallel()

	s := newHeapScheduler(t)
	rec := testutil.NewRecorder(nil)

	h := s.Schedule(50*time.Millisecond, event.Timer{Timer: event.TimerL}, rec)
	keep := s.Schedule(80*time.Millisecond, event.Timer{Timer: event.TimerI}, rec)
	if !h.Cancel() {
		t.Fatal("h.Cancel() = false, want true")
	}
	if h.Cancel() {
		t.Error("second h.Cancel() = true, want false")
	}

	got := timerNames(rec.WaitLen(t, 1, 2*time.Second))
	if want := []event.SipTimer{event.TimerI}; !cmp.Equal(got, want) {
		t.Errorf("delivered = %v, want %v", got, want)
	}
	if keep.Cancel() {
		t.Error("keep.Cancel() after fire = true, want false")
	}
}

func TestHeapScheduler_CancelAfterFireDeliversOnce(t *testing.T) {
	t.Parallel()

	s := newHeapScheduler(t)
	rec := testutil.NewRecorder(nil)

	h := s.Schedule(0, event.Timer{Timer: event.TimerI}, rec)
	rec.WaitLen(t, 1, time.Second)
	if h.Cancel() {
		t.Error("h.Cancel() after fire = true, want false")
	}

	time.Sleep(20 * time.Millisecond)
	if n := rec.Len(); n != 1 {
		t.Errorf("delivered events = %d, want 1", n)
	}
}

func TestHeapScheduler_Close(t *testing.T) {
	t.Parallel()

	s := actor.NewHeapScheduler(&actor.HeapSchedulerOptions{Log: log.Noop})
	rec := testutil.NewRecorder(nil)

	pending := s.Schedule(time.Hour, event.Timer{Timer: event.TimerH}, rec)
	s.Close()
	s.Close()

	if n := s.Len(); n != 0 {
		t.Errorf("s.Len() after close = %d, want 0", n)
	}
	if !pending.Cancel() {
		t.Error("pending.Cancel() after close = false, want true")
	}

	late := s.Schedule(0, event.Timer{Timer: event.TimerG}, rec)
	if !late.Cancel() {
		t.Error("late.Cancel() = false, want true")
	}
	if late.Cancel() {
		t.Error("second late.Cancel() = true, want false")
	}
	time.Sleep(20 * time.Millisecond)
	if n := rec.Len(); n != 0 {
		t.Errorf("delivered events = %d, want 0", n)
	}
}

func TestHeapScheduler_EarlierDeadlineWakesLoop(t *testing.T) {
	t.Parallel()

	s := newHeapScheduler(t)
	rec := testutil.NewRecorder(nil)

	s.Schedule(time.Hour, event.Timer{Timer: event.TimerH}, rec)
	start := time.Now()
	s.Schedule(10*time.Millisecond, event.Timer{Timer: event.TimerG}, rec)

	rec.WaitLen(t, 1, time.Second)
	if d := time.Since(start); d < 10*time.Millisecond {
		t.Errorf("timer fired after %v, want at least 10ms", d)
	}
	if n := s.Len(); n != 1 {
		t.Errorf("s.Len() = %d, want 1", n)
	}
}

func TestHeapScheduler_BoundToCell(t *testing.T) {
	t.Parallel()

	s := newHeapScheduler(t)
	app := testutil.NewRecorder(nil)
	a := actor.ActorFunc(func(ctx actor.Context, ev event.Event) {
		if _, ok := ev.(event.Terminate); ok {
			ctx.Scheduler().ScheduleTimer(5*time.Millisecond, event.TimerJ)
			return
		}
		ctx.ForwardUpstream(ev)
	})
	c := newCell(t, a, &actor.CellOptions{Scheduler: s}, self, ref(app))
	c.Start()
	defer c.Stop()
	c.Tell(event.Terminate{})

	got := timerNames(app.WaitLen(t, 1, time.Second))
	if want := []event.SipTimer{event.TimerJ}; !cmp.Equal(got, want) {
		t.Errorf("forwarded = %v, want %v", got, want)
	}
}
