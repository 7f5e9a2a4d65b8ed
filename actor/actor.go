package actor

import (
	"context"
	"log/slog"
	"time"

	"github.com/ghettovoice/sipstack/event"
)

// Ref is a handle events can be sent to.
type Ref interface {
	// Tell enqueues the event. It returns false when the target
	// no longer accepts events.
	Tell(ev event.Event) bool
}

// RefFunc is an adapter to allow the use of ordinary functions as [Ref].
type RefFunc func(ev event.Event) bool

func (f RefFunc) Tell(ev event.Event) bool { return f(ev) }

// Actor handles events delivered from its mailbox.
// Receive is never called concurrently for the same actor.
type Actor interface {
	Receive(ctx Context, ev event.Event)
}

// ActorFunc is an adapter to allow the use of ordinary functions as [Actor].
type ActorFunc func(ctx Context, ev event.Event)

func (f ActorFunc) Receive(ctx Context, ev event.Event) { f(ctx, ev) }

// Context is the handle an actor uses to talk to the outside while handling an event.
type Context interface {
	// Context returns the context of the cell. It is canceled when the cell stops.
	Context() context.Context
	// ForwardUpstream sends the event to the next element towards the application.
	ForwardUpstream(ev event.Event)
	// ForwardDownstream sends the event to the next element towards the network.
	ForwardDownstream(ev event.Event)
	// Scheduler returns a scheduler that delivers events back to this actor.
	Scheduler() TimerScheduler
	// Self returns the reference of the running actor.
	Self() Ref
	// Stop stops the actor once the current event is handled.
	// Events left in the mailbox are dropped.
	Stop()
	Log() *slog.Logger
}

// Cancellable is a handle to a scheduled delivery.
type Cancellable interface {
	// Cancel prevents the delivery. It returns true only when the delivery
	// was prevented by this call. Once it returns false, the event has been
	// or will be delivered exactly once.
	Cancel() bool
}

// Scheduler delivers events to references after a delay.
type Scheduler interface {
	Schedule(delay time.Duration, ev event.Event, dst Ref) Cancellable
}

// TimerScheduler is a [Scheduler] bound to an actor.
type TimerScheduler interface {
	Schedule(delay time.Duration, ev event.Event) Cancellable
	ScheduleTimer(delay time.Duration, tmr event.SipTimer) Cancellable
}

type boundScheduler struct {
	sched Scheduler
	dst   Ref
}

func (s boundScheduler) Schedule(delay time.Duration, ev event.Event) Cancellable {
	return s.sched.Schedule(delay, ev, s.dst)
}

func (s boundScheduler) ScheduleTimer(delay time.Duration, tmr event.SipTimer) Cancellable {
	return s.sched.Schedule(delay, event.Timer{Timer: tmr}, s.dst)
}

// Executor runs mailbox drain jobs.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc is an adapter to allow the use of ordinary functions as [Executor].
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) { f(fn) }

var (
	// GoExecutor runs every drain job in a new goroutine.
	GoExecutor Executor = ExecutorFunc(func(fn func()) { go fn() })
	// InlineExecutor runs drain jobs on the calling goroutine.
	// It makes event handling fully deterministic and is meant for tests.
	InlineExecutor Executor = ExecutorFunc(func(fn func()) { fn() })
)
