package actor_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/ghettovoice/sipstack/actor"
	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/internal/errorutil"
	"github.com/ghettovoice/sipstack/internal/testutil"
	"github.com/ghettovoice/sipstack/internal/testutil/actormock"
	"github.com/ghettovoice/sipstack/log"
)

func forwarder() actor.Actor {
	return actor.ActorFunc(func(ctx actor.Context, ev event.Event) {
		ctx.ForwardUpstream(ev)
	})
}

func newCell(t *testing.T, a actor.Actor, opts *actor.CellOptions, refs ...func(c *actor.Cell) actor.Ref) *actor.Cell {
	t.Helper()

	if opts == nil {
		opts = &actor.CellOptions{Executor: actor.InlineExecutor}
	}
	if opts.Log == nil {
		opts.Log = log.Noop
	}
	c := actor.NewCell(a, opts)
	pipe := make([]actor.Ref, len(refs))
	for i, fn := range refs {
		pipe[i] = fn(c)
	}
	if err := c.Bind(actor.NewPipeLine(pipe...)); err != nil {
		t.Fatalf("c.Bind(pipe) error = %v, want nil", err)
	}
	return c
}

func self(c *actor.Cell) actor.Ref { return c }

func ref(r actor.Ref) func(*actor.Cell) actor.Ref {
	return func(*actor.Cell) actor.Ref { return r }
}

func timerNames(evs []event.Event) []event.SipTimer {
	names := make([]event.SipTimer, 0, len(evs))
	for _, ev := range evs {
		if tmr, ok := ev.(event.Timer); ok {
			names = append(names, tmr.Timer)
		}
	}
	return names
}

func TestCell_PreQueuedEventsFirst(t *testing.T) {
	t.Parallel()

	app := testutil.NewRecorder(nil)
	c := newCell(t, forwarder(), nil, self, ref(app))

	for _, tmr := range []event.SipTimer{event.TimerG, event.TimerH} {
		if !c.Tell(event.Timer{Timer: tmr}) {
			t.Fatalf("c.Tell(%v) = false, want true", tmr)
		}
	}
	if got := app.Len(); got != 0 {
		t.Fatalf("app.Len() before start = %d, want 0", got)
	}

	c.Start()
	c.Tell(event.Timer{Timer: event.TimerI})

	want := []event.SipTimer{event.TimerG, event.TimerH, event.TimerI}
	if diff := cmp.Diff(want, timerNames(app.Events())); diff != "" {
		t.Errorf("forwarded events mismatch (-want +got):\n%s", diff)
	}
}

func TestCell_ForwardDownstream(t *testing.T) {
	t.Parallel()

	net := testutil.NewRecorder(nil)
	a := actor.ActorFunc(func(ctx actor.Context, ev event.Event) {
		ctx.ForwardDownstream(ev)
		// no upstream neighbour
		ctx.ForwardUpstream(ev)
	})
	c := newCell(t, a, nil, ref(net), self)
	c.Start()
	c.Tell(event.Timer{Timer: event.TimerL})

	if diff := cmp.Diff([]event.SipTimer{event.TimerL}, timerNames(net.Events())); diff != "" {
		t.Errorf("downstream events mismatch (-want +got):\n%s", diff)
	}
}

func TestCell_StopDropsPendingEvents(t *testing.T) {
	t.Parallel()

	app := testutil.NewRecorder(nil)
	a := actor.ActorFunc(func(ctx actor.Context, ev event.Event) {
		ctx.ForwardUpstream(ev)
		ctx.Stop()
	})
	c := newCell(t, a, nil, self, ref(app))

	var stops int
	c.OnStop(func() { stops++ })

	c.Tell(event.Timer{Timer: event.TimerG})
	c.Tell(event.Timer{Timer: event.TimerH})
	c.Start()

	if got, want := timerNames(app.Events()), []event.SipTimer{event.TimerG}; !cmp.Equal(got, want) {
		t.Fatalf("forwarded = %v, want %v", got, want)
	}
	if !c.Stopped() {
		t.Fatal("c.Stopped() = false, want true")
	}
	if c.Tell(event.Timer{Timer: event.TimerI}) {
		t.Error("c.Tell(ev) after stop = true, want false")
	}
	c.Stop()
	if stops != 1 {
		t.Errorf("stop callbacks = %d, want 1", stops)
	}

	var late bool
	c.OnStop(func() { late = true })
	if !late {
		t.Error("OnStop(fn) on stopped cell did not call fn")
	}
}

func TestCell_OnStopRemove(t *testing.T) {
	t.Parallel()

	c := newCell(t, forwarder(), nil, self)
	var called bool
	remove := c.OnStop(func() { called = true })
	remove()
	c.Stop()
	if called {
		t.Error("removed stop callback was called")
	}
}

func TestCell_PanicStopsCell(t *testing.T) {
	t.Parallel()

	a := actor.ActorFunc(func(actor.Context, event.Event) { panic("boom") })
	c := newCell(t, a, nil, self)
	c.Start()
	c.Tell(event.Timer{Timer: event.TimerG})

	if !c.Stopped() {
		t.Error("c.Stopped() after panic = false, want true")
	}
}

func TestCell_Bind(t *testing.T) {
	t.Parallel()

	c := actor.NewCell(forwarder(), &actor.CellOptions{Log: log.Noop})
	if err := c.Bind(actor.NewPipeLine()); !errors.Is(err, errorutil.ErrInvalidArgument) {
		t.Errorf("c.Bind(empty) error = %v, want %v", err, errorutil.ErrInvalidArgument)
	}

	if err := c.Bind(actor.NewPipeLine(c)); err != nil {
		t.Fatalf("c.Bind(pipe) error = %v, want nil", err)
	}
	c.Start()
	defer c.Stop()
	if err := c.Bind(actor.NewPipeLine(c)); !errors.Is(err, errorutil.ErrInvalidArgument) {
		t.Errorf("c.Bind(pipe) after start error = %v, want %v", err, errorutil.ErrInvalidArgument)
	}
}

func TestCell_ScheduledTimerComesBack(t *testing.T) {
	t.Parallel()

	sched := testutil.NewManualScheduler()
	app := testutil.NewRecorder(nil)

	var handle actor.Cancellable
	a := actor.ActorFunc(func(ctx actor.Context, ev event.Event) {
		if _, ok := ev.(event.Terminate); ok {
			handle = ctx.Scheduler().ScheduleTimer(time.Second, event.TimerL)
			return
		}
		ctx.ForwardUpstream(ev)
	})
	c := newCell(t, a, &actor.CellOptions{Executor: actor.InlineExecutor, Scheduler: sched}, self, ref(app))
	c.Start()
	c.Tell(event.Terminate{})

	if n := sched.Advance(999 * time.Millisecond); n != 0 {
		t.Fatalf("sched.Advance(999ms) = %d, want 0", n)
	}
	if n := sched.Advance(time.Millisecond); n != 1 {
		t.Fatalf("sched.Advance(1ms) = %d, want 1", n)
	}
	if got, want := timerNames(app.Events()), []event.SipTimer{event.TimerL}; !cmp.Equal(got, want) {
		t.Errorf("forwarded = %v, want %v", got, want)
	}
	if handle.Cancel() {
		t.Error("handle.Cancel() after fire = true, want false")
	}
}

func TestCell_NoScheduler(t *testing.T) {
	t.Parallel()

	var got any
	a := actor.ActorFunc(func(ctx actor.Context, _ event.Event) {
		defer func() { got = recover() }()
		ctx.Scheduler()
	})
	c := newCell(t, a, nil, self)
	c.Start()
	c.Tell(event.Terminate{})

	if got != actor.ErrNoScheduler {
		t.Errorf("ctx.Scheduler() panic = %v, want %v", got, actor.ErrNoScheduler)
	}
}

func TestCell_ForwardToStoppedNeighbour(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	up := actormock.NewMockRef(ctrl)
	up.EXPECT().Tell(event.Timer{Timer: event.TimerJ}).Return(false).Times(1)

	c := newCell(t, forwarder(), nil, self, ref(up))
	c.Start()
	c.Tell(event.Timer{Timer: event.TimerJ})

	if c.Stopped() {
		t.Error("c.Stopped() = true, want false")
	}
}

func TestCell_SequentialUnderConcurrentTell(t *testing.T) {
	t.Parallel()

	const senders, perSender = 8, 50

	var (
		inside  atomic.Int32
		overlap atomic.Bool
	)
	a := actor.ActorFunc(func(ctx actor.Context, ev event.Event) {
		if inside.Add(1) > 1 {
			overlap.Store(true)
		}
		inside.Add(-1)
		ctx.ForwardUpstream(ev)
	})
	app := testutil.NewRecorder(nil)
	c := newCell(t, a, &actor.CellOptions{Executor: actor.GoExecutor, Throughput: 3}, self, ref(app))
	c.Start()
	defer c.Stop()

	var wg sync.WaitGroup
	for range senders {
		wg.Go(func() {
			for range perSender {
				c.Tell(event.Timer{Timer: event.TimerG})
			}
		})
	}
	wg.Wait()

	app.WaitLen(t, senders*perSender, 5*time.Second)
	if overlap.Load() {
		t.Error("actor was entered concurrently")
	}
}
