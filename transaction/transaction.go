package transaction

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/sipstack/actor"
	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/internal/errorutil"
	"github.com/ghettovoice/sipstack/log"
	"github.com/ghettovoice/sipstack/sip"
)

// Transaction is a server transaction.
// It is an [actor.Actor], all state changes happen inside [actor.Actor.Receive].
// Accessors are safe for concurrent use.
type Transaction interface {
	actor.Actor
	slog.LogValuer
	ID() sip.TransactionID
	Type() Type
	State() State
	// Request returns the request that created the transaction.
	Request() sip.Request
	// LastResponse returns the response with the highest status sent so far.
	LastResponse() sip.Response
}

// Options are the options of server transactions.
type Options struct {
	// ID is the transaction key.
	// If zero, it is computed from the request.
	ID sip.TransactionID
	// Config is the transaction configuration.
	Config Config
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *Options) id() sip.TransactionID {
	if o == nil {
		return sip.TransactionID{}
	}
	return o.ID
}

func (o *Options) config() Config {
	if o == nil {
		return Config{}
	}
	return o.Config
}

func (o *Options) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Factory creates server transactions for requests admitted by the [Supervisor].
type Factory interface {
	NewServerTransaction(ev event.SipMessage, opts *Options) (Transaction, error)
}

// FactoryFunc is an adapter to allow the use of ordinary functions as [Factory].
type FactoryFunc func(ev event.SipMessage, opts *Options) (Transaction, error)

func (f FactoryFunc) NewServerTransaction(ev event.SipMessage, opts *Options) (Transaction, error) {
	return errtrace.Wrap2(f(ev, opts))
}

// NewServerTransaction creates an INVITE or a non-INVITE server transaction
// depending on the request method.
func NewServerTransaction(ev event.SipMessage, opts *Options) (Transaction, error) {
	if sip.IsInvite(ev.Msg) {
		tx, err := NewInviteServerTransaction(ev, opts)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		return tx, nil
	}

	tx, err := NewNonInviteServerTransaction(ev, opts)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return tx, nil
}

type trigger string

func becomeTrigger(s State) trigger { return trigger("become_" + s.String()) }

var timerNames = map[event.SipTimer]string{
	event.Timer100Trying: "timer 100",
	event.TimerG:         "timer G",
	event.TimerH:         "timer H",
	event.TimerI:         "timer I",
	event.TimerJ:         "timer J",
	event.TimerL:         "timer L",
	event.TimerStale:     "stale timer",
}

// serverTransact holds the state shared by INVITE and non-INVITE server transactions.
type serverTransact struct {
	impl Transaction
	typ  Type
	id   sip.TransactionID
	req  sip.Request
	conn sip.Connection
	cfg  Config
	log  *slog.Logger

	fsm     *stateless.StateMachine
	state   atomic.Int32
	lastRes atomic.Pointer[sip.Response]

	// Fields below are owned by the cell goroutine.
	actx   actor.Context
	timers map[event.SipTimer]actor.Cancellable
}

func newServerTransact(
	typ Type,
	impl Transaction,
	start State,
	ev event.SipMessage,
	opts *Options,
) (*serverTransact, error) {
	req, ok := ev.Request()
	if !ok || req == nil {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError("request expected"))
	}

	id := opts.id()
	if id == (sip.TransactionID{}) {
		var err error
		if id, err = sip.TransactionIDFromMessage(req); err != nil {
			return nil, errtrace.Wrap(err)
		}
	} else if !id.IsValid() {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError("invalid transaction key"))
	}

	tx := &serverTransact{
		impl:   impl,
		typ:    typ,
		id:     id,
		req:    req,
		conn:   ev.Conn,
		cfg:    opts.config(),
		log:    opts.log(),
		timers: make(map[event.SipTimer]actor.Cancellable),
	}
	tx.state.Store(int32(start))
	tx.fsm = stateless.NewStateMachineWithExternalStorage(
		func(context.Context) (stateless.State, error) { return tx.State(), nil },
		func(_ context.Context, s stateless.State) error {
			tx.state.Store(int32(s.(State))) //nolint:forcetypeassert
			return nil
		},
		stateless.FiringImmediate,
	)
	tx.fsm.Configure(StateTerminated).OnEntry(tx.actTerminated)
	return tx, nil
}

func (tx *serverTransact) ID() sip.TransactionID { return tx.id }

func (tx *serverTransact) Type() Type { return tx.typ }

func (tx *serverTransact) State() State { return State(tx.state.Load()) }

func (tx *serverTransact) Request() sip.Request { return tx.req }

func (tx *serverTransact) LastResponse() sip.Response {
	if res := tx.lastRes.Load(); res != nil {
		return *res
	}
	return nil
}

// LogValue implements [slog.LogValuer].
func (tx *serverTransact) LogValue() slog.Value {
	if tx == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Any("type", tx.typ),
		slog.Any("id", tx.id),
		slog.Any("state", tx.State()),
	)
}

// permit configures allowed transitions out of the state.
func (tx *serverTransact) permit(from State, to ...State) *stateless.StateConfiguration {
	cfg := tx.fsm.Configure(from)
	for _, dst := range to {
		cfg.Permit(becomeTrigger(dst), dst)
	}
	return cfg
}

// receive runs handle for the event with the actor context bound to the transaction.
// Termination requests and timers of already left states are handled here.
func (tx *serverTransact) receive(actx actor.Context, ev event.Event, handle func(context.Context, event.Event)) {
	tx.actx = actx
	defer func() { tx.actx = nil }()

	ctx := actx.Context()
	switch ev := ev.(type) {
	case event.Terminate:
		if tx.State().IsTerminal() {
			return
		}
		tx.log.LogAttrs(ctx, slog.LevelDebug,
			"terminate transaction",
			slog.Any("transaction", tx.impl),
			slog.Any("reason", ev.Reason),
		)
		tx.become(ctx, StateTerminated)
		return
	case event.Timer:
		if !tx.timerFired(ctx, ev.Timer) {
			return
		}
	}
	handle(ctx, ev)
}

// become switches the transaction to the state.
// Exit actions of the current state run before entry actions of the new one.
func (tx *serverTransact) become(ctx context.Context, to State) {
	from := tx.State()
	if err := tx.fsm.FireCtx(ctx, becomeTrigger(to)); err != nil {
		tx.log.LogAttrs(ctx, slog.LevelWarn,
			"transaction state transition rejected",
			slog.Any("transaction", tx.impl),
			slog.Any("from", from),
			slog.Any("to", to),
			slog.Any("error", err),
		)
		return
	}

	tx.log.LogAttrs(ctx, slog.LevelDebug,
		"transaction state changed",
		slog.Any("transaction", tx.impl),
		slog.Any("from", from),
		slog.Any("to", to),
	)
}

func (tx *serverTransact) isFounding(msg sip.Message) bool {
	return msg == sip.Message(tx.req)
}

func (tx *serverTransact) reliable() bool {
	if tx.conn.Transport != "" {
		return tx.conn.Reliable()
	}
	via, _ := tx.req.TopVia()
	return via.Transport.Reliable()
}

func (tx *serverTransact) startTimer(ctx context.Context, tmr event.SipTimer, d time.Duration) {
	if h, ok := tx.timers[tmr]; ok {
		h.Cancel()
	}
	tx.timers[tmr] = tx.actx.Scheduler().ScheduleTimer(d, tmr)

	tx.log.LogAttrs(ctx, slog.LevelDebug,
		timerNames[tmr]+" started",
		slog.Any("transaction", tx.impl),
		slog.Time("expires_at", time.Now().Add(d)),
	)
}

func (tx *serverTransact) startStaleTimer(ctx context.Context) {
	if d := tx.cfg.staleTimeout(); d > 0 {
		tx.startTimer(ctx, event.TimerStale, d)
	}
}

func (tx *serverTransact) stopTimer(ctx context.Context, tmr event.SipTimer) {
	h, ok := tx.timers[tmr]
	if !ok {
		return
	}
	delete(tx.timers, tmr)
	if h.Cancel() {
		tx.log.LogAttrs(ctx, slog.LevelDebug, timerNames[tmr]+" stopped", slog.Any("transaction", tx.impl))
	}
}

// timerFired reports whether the fired timer is still armed and disarms it.
// Timers that lost the cancellation race deliver tokens after their state was left,
// such tokens are ignored.
func (tx *serverTransact) timerFired(ctx context.Context, tmr event.SipTimer) bool {
	if _, ok := tx.timers[tmr]; !ok {
		tx.log.LogAttrs(ctx, slog.LevelDebug,
			"ignore stale "+timerNames[tmr],
			slog.Any("transaction", tx.impl),
		)
		return false
	}
	delete(tx.timers, tmr)

	tx.log.LogAttrs(ctx, slog.LevelDebug, timerNames[tmr]+" expired", slog.Any("transaction", tx.impl))
	return true
}

func (tx *serverTransact) passUpstream(ctx context.Context, ev event.Event) {
	tx.log.LogAttrs(ctx, slog.LevelDebug,
		"pass event upstream",
		slog.Any("transaction", tx.impl),
		slog.Any("event", ev),
	)
	tx.actx.ForwardUpstream(ev)
}

func (tx *serverTransact) sendRes(ctx context.Context, res sip.Response) {
	tx.log.LogAttrs(ctx, slog.LevelDebug,
		"send response",
		slog.Any("transaction", tx.impl),
		slog.Any("response", res),
	)
	tx.actx.ForwardDownstream(event.NewSipMessage(res, tx.conn))
}

// relayRes sends the response and remembers it unless a response
// with a higher status was already sent.
func (tx *serverTransact) relayRes(ctx context.Context, res sip.Response) {
	tx.sendRes(ctx, res)
	if last := tx.LastResponse(); last == nil || res.Status() >= last.Status() {
		tx.lastRes.Store(&res)
	}
}

func (tx *serverTransact) resendRes(ctx context.Context) {
	res := tx.LastResponse()
	if res == nil {
		tx.log.LogAttrs(ctx, slog.LevelDebug,
			"absorb request retransmission, no response sent yet",
			slog.Any("transaction", tx.impl),
		)
		return
	}
	tx.sendRes(ctx, res)
}

func (tx *serverTransact) absorb(ctx context.Context, ev event.Event) {
	tx.log.LogAttrs(ctx, slog.LevelDebug,
		"absorb event",
		slog.Any("transaction", tx.impl),
		slog.Any("event", ev),
	)
}

func (tx *serverTransact) unexpected(ctx context.Context, ev event.Event) {
	tx.log.LogAttrs(ctx, slog.LevelWarn,
		"unexpected event, dropped",
		slog.Any("transaction", tx.impl),
		slog.Any("event", ev),
	)
}

func (tx *serverTransact) reportErr(ctx context.Context, err error) {
	tx.log.LogAttrs(ctx, slog.LevelDebug,
		"report transaction error",
		slog.Any("transaction", tx.impl),
		slog.Any("error", err),
	)
	tx.actx.ForwardUpstream(event.Error{ID: tx.id, Err: err})
}

func (tx *serverTransact) timedOut(ctx context.Context) {
	tx.reportErr(ctx, ErrTransactionTimedOut)
	tx.become(ctx, StateTerminated)
}

func (tx *serverTransact) transportFailed(ctx context.Context, ev event.TransportError, terminate bool) {
	tx.reportErr(ctx, errorutil.NewWrapperError(ErrTransportFailed, ev.Err))
	if terminate {
		tx.become(ctx, StateTerminated)
	}
}

func (tx *serverTransact) actTerminated(ctx context.Context, _ ...any) error {
	for tmr := range tx.timers {
		tx.stopTimer(ctx, tmr)
	}

	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction terminated", slog.Any("transaction", tx.impl))

	tx.actx.Stop()
	return nil
}
