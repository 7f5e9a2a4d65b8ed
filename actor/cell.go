package actor

import (
	"context"
	"log/slog"
	"sync"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/internal/errorutil"
	"github.com/ghettovoice/sipstack/internal/types"
	"github.com/ghettovoice/sipstack/log"
)

// Actor errors.
const (
	ErrActorStopped Error = "actor stopped"
	ErrNoScheduler  Error = "no scheduler configured"
)

// Error is an actor package error.
// See [errorutil.Error].
type Error = errorutil.Error

// CellOptions are the options of a [Cell].
type CellOptions struct {
	// Executor runs mailbox drain jobs.
	// If nil, [GoExecutor] is used.
	Executor Executor
	// Scheduler is used for timers requested through [Context.Scheduler].
	// If nil, timers are not available and [Context.Scheduler] panics with [ErrNoScheduler].
	Scheduler Scheduler
	// Throughput is the maximum number of events handled in one drain job
	// before the job yields back to the executor.
	// If 0, 64 is used.
	Throughput int
	// Log is the logger used by the cell and handed to the actor.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *CellOptions) executor() Executor {
	if o == nil || o.Executor == nil {
		return GoExecutor
	}
	return o.Executor
}

func (o *CellOptions) scheduler() Scheduler {
	if o == nil {
		return nil
	}
	return o.Scheduler
}

func (o *CellOptions) throughput() int {
	if o == nil || o.Throughput <= 0 {
		return 64
	}
	return o.Throughput
}

func (o *CellOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Cell binds an [Actor] to its mailbox and its position in a [PipeLine].
//
// Events sent with [Cell.Tell] before [Cell.Start] are kept in the mailbox
// and handled first once the cell starts.
type Cell struct {
	actor      Actor
	exec       Executor
	sched      Scheduler
	throughput int
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	pipe PipeLine
	pos  int

	mbox    types.Deque[event.Event]
	mu      sync.Mutex
	started bool
	running bool
	stopped bool

	onStop types.CallbackManager[func()]
}

// NewCell creates a new cell for the actor.
// Options are optional, if nil, default values are used (see [CellOptions]).
func NewCell(a Actor, opts *CellOptions) *Cell {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cell{
		actor:      a,
		exec:       opts.executor(),
		sched:      opts.scheduler(),
		throughput: opts.throughput(),
		log:        opts.log(),
		ctx:        ctx,
		cancel:     cancel,
		pos:        -1,
	}
}

// Bind places the cell into the pipeline. The pipeline must contain the cell.
// Bind must be called before [Cell.Start].
func (c *Cell) Bind(p PipeLine) error {
	pos := p.indexOf(c)
	if pos < 0 {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("cell is not part of the pipeline"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("cell already started"))
	}
	c.pipe = p
	c.pos = pos
	return nil
}

// Actor returns the actor served by the cell.
func (c *Cell) Actor() Actor { return c.actor }

// Start begins handling of mailbox events.
func (c *Cell) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	run := c.mbox.Len() > 0
	c.running = run
	c.mu.Unlock()

	if run {
		c.exec.Execute(c.drain)
	}
}

// Tell implements [Ref].
func (c *Cell) Tell(ev event.Event) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	c.mbox.Append(ev)
	run := c.started && !c.running
	if run {
		c.running = true
	}
	c.mu.Unlock()

	if run {
		c.exec.Execute(c.drain)
	}
	return true
}

// Stop stops the cell. Events still in the mailbox are dropped.
// Registered stop callbacks are called once, on the calling goroutine.
func (c *Cell) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	c.cancel()
	for fn := range c.onStop.All() {
		fn()
	}
}

// Stopped reports whether the cell stopped.
func (c *Cell) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// OnStop registers a callback to be called when the cell stops.
// If the cell already stopped, fn is called immediately.
func (c *Cell) OnStop(fn func()) (remove func()) {
	remove = c.onStop.Add(fn)
	if c.Stopped() {
		remove()
		fn()
		return func() {}
	}
	return remove
}

func (c *Cell) drain() {
	for range c.throughput {
		c.mu.Lock()
		if c.stopped {
			c.running = false
			dropped := c.mbox.Drain()
			c.mu.Unlock()

			if len(dropped) > 0 {
				c.log.LogAttrs(c.ctx, slog.LevelDebug,
					"drop events of stopped actor",
					slog.Int("count", len(dropped)),
				)
			}
			return
		}
		ev, ok := c.mbox.PopFirst()
		if !ok {
			c.running = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		c.receive(ev)
	}

	// yield to other cells sharing the executor
	c.exec.Execute(c.drain)
}

func (c *Cell) receive(ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.LogAttrs(c.ctx, slog.LevelError,
				"actor panicked, stopping",
				slog.Any("event", ev),
				slog.Any("panic", r),
			)
			c.Stop()
		}
	}()

	c.actor.Receive(cellContext{c}, ev)
}

type cellContext struct {
	c *Cell
}

func (ctx cellContext) Context() context.Context { return ctx.c.ctx }

func (ctx cellContext) ForwardUpstream(ev event.Event) {
	ctx.forward(ev, "upstream", ctx.c.pipe.Upstream)
}

func (ctx cellContext) ForwardDownstream(ev event.Event) {
	ctx.forward(ev, "downstream", ctx.c.pipe.Downstream)
}

func (ctx cellContext) forward(ev event.Event, dir string, next func(int) (Ref, bool)) {
	ref, ok := next(ctx.c.pos)
	if !ok {
		ctx.c.log.LogAttrs(ctx.c.ctx, slog.LevelWarn,
			"no "+dir+" neighbour, event dropped",
			slog.Any("event", ev),
		)
		return
	}
	if !ref.Tell(ev) {
		ctx.c.log.LogAttrs(ctx.c.ctx, slog.LevelDebug,
			dir+" neighbour stopped, event dropped",
			slog.Any("event", ev),
		)
	}
}

func (ctx cellContext) Scheduler() TimerScheduler {
	if ctx.c.sched == nil {
		panic(ErrNoScheduler)
	}
	return boundScheduler{ctx.c.sched, ctx.c}
}

func (ctx cellContext) Self() Ref { return ctx.c }

func (ctx cellContext) Stop() { ctx.c.Stop() }

func (ctx cellContext) Log() *slog.Logger { return ctx.c.log }
