package transaction

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipstack/actor"
	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/internal/errorutil"
	"github.com/ghettovoice/sipstack/internal/syncutil"
	"github.com/ghettovoice/sipstack/internal/types"
	"github.com/ghettovoice/sipstack/log"
	"github.com/ghettovoice/sipstack/sip"
)

// SupervisorOptions are the options of a [Supervisor].
type SupervisorOptions struct {
	// Config is passed to every created transaction.
	Config Config
	// Scheduler delivers transaction timers.
	// If nil, the supervisor starts its own [actor.HeapScheduler] and closes it on [Supervisor.Close].
	Scheduler actor.Scheduler
	// Executor runs transaction mailboxes.
	// If nil, [actor.GoExecutor] is used.
	Executor actor.Executor
	// Factory creates transactions.
	// If nil, [NewServerTransaction] is used.
	Factory Factory
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *SupervisorOptions) config() Config {
	if o == nil {
		return Config{}
	}
	return o.Config
}

func (o *SupervisorOptions) scheduler() actor.Scheduler {
	if o == nil {
		return nil
	}
	return o.Scheduler
}

func (o *SupervisorOptions) executor() actor.Executor {
	if o == nil || o.Executor == nil {
		return actor.GoExecutor
	}
	return o.Executor
}

func (o *SupervisorOptions) factory() Factory {
	if o == nil || o.Factory == nil {
		return FactoryFunc(NewServerTransaction)
	}
	return o.Factory
}

func (o *SupervisorOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// TransactionHandler is a callback called for every new transaction.
type TransactionHandler = func(ctx context.Context, tx Transaction)

// Supervisor is the single point of admission of events into server transactions.
//
// It owns the registry of live transactions. Every transaction runs in its own
// [actor.Cell] placed in the pipeline [downstream, transaction, upstream].
// The registry holds at most one live transaction per [sip.TransactionID].
type Supervisor struct {
	downstream,
	upstream actor.Ref
	cfg      Config
	sched    actor.Scheduler
	ownSched *actor.HeapScheduler
	exec     actor.Executor
	factory  Factory
	log      *slog.Logger

	txs     *syncutil.ShardMap[sip.TransactionID, *txEntry]
	stats   statsRecorder
	onNewTx types.CallbackManager[TransactionHandler]

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type txEntry struct {
	tx   Transaction
	cell *actor.Cell
}

// NewSupervisor creates a new [Supervisor].
// Downstream receives responses to be sent to the network,
// upstream receives requests, ACKs and transaction errors for the application.
// Options are optional, if nil, default values are used (see [SupervisorOptions]).
func NewSupervisor(downstream, upstream actor.Ref, opts *SupervisorOptions) (*Supervisor, error) {
	if downstream == nil || upstream == nil {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError("downstream and upstream references are required"))
	}

	s := &Supervisor{
		downstream: downstream,
		upstream:   upstream,
		cfg:        opts.config(),
		sched:      opts.scheduler(),
		exec:       opts.executor(),
		factory:    opts.factory(),
		log:        opts.log(),
		txs:        syncutil.NewShardMap[sip.TransactionID, *txEntry](),
	}
	if s.sched == nil {
		s.ownSched = actor.NewHeapScheduler(&actor.HeapSchedulerOptions{Log: s.log})
		s.sched = s.ownSched
	}
	return s, nil
}

// Dispatch admits the event.
//
// Requests other than ACK are delivered to the matching live transaction
// or create a new one. ACKs without a matching transaction are passed upstream.
// Responses and transport errors are delivered to the matching transaction,
// [ErrTransactionNotFound] is returned if there is none.
func (s *Supervisor) Dispatch(ctx context.Context, ev event.Event) error {
	if s.closing.Load() {
		return errtrace.Wrap(ErrSupervisorClosed)
	}

	switch ev := ev.(type) {
	case event.SipMessage:
		if ev.Msg == nil {
			return errtrace.Wrap(sip.NewInvalidArgumentError("empty message"))
		}
		id, err := sip.TransactionIDFromMessage(ev.Msg)
		if err != nil {
			return errtrace.Wrap(err)
		}
		switch {
		case sip.IsResponse(ev.Msg):
			return errtrace.Wrap(s.routeResponse(ctx, id, ev))
		case sip.IsAck(ev.Msg):
			s.routeAck(ctx, id, ev)
			return nil
		default:
			return errtrace.Wrap(s.routeRequest(ctx, id, ev))
		}
	case event.TransportError:
		return errtrace.Wrap(s.routeTransportError(ctx, ev))
	default:
		return errtrace.Wrap(errorutil.NewWrapperError(ErrUnexpectedEvent, fmt.Sprintf("%T", ev)))
	}
}

func (s *Supervisor) routeRequest(ctx context.Context, id sip.TransactionID, ev event.SipMessage) error {
	if _, ok := ev.Request(); !ok {
		return errtrace.Wrap(sip.NewInvalidArgumentError("unsupported message type %T", ev.Msg))
	}

	for {
		var (
			created   *txEntry
			createErr error
		)
		ent, _ := s.txs.Compute(id, func(cur *txEntry, loaded bool) (*txEntry, bool) {
			// a stopped transaction is replaced only after it refused events
			if loaded && !cur.cell.Stopped() {
				return cur, true
			}
			if s.closing.Load() {
				createErr = ErrSupervisorClosed
				return cur, loaded
			}
			created, createErr = s.newEntry(id, ev)
			if createErr != nil {
				return cur, loaded
			}
			return created, true
		})
		if createErr != nil {
			return errtrace.Wrap(createErr)
		}

		if created != nil {
			s.stats.created(created.tx.Type())

			s.log.LogAttrs(ctx, slog.LevelDebug, "transaction created", slog.Any("transaction", created.tx))

			for fn := range s.onNewTx.All() {
				fn(ctx, created.tx)
			}
			created.cell.Start()
			return nil
		}

		if ent.cell.Tell(ev) {
			return nil
		}
		// the transaction stopped between lookup and delivery, retry to replace it
	}
}

// newEntry creates the transaction and its cell with the founding event queued.
// It runs under the registry shard lock and must not access the registry.
func (s *Supervisor) newEntry(id sip.TransactionID, ev event.SipMessage) (*txEntry, error) {
	tx, err := s.factory.NewServerTransaction(ev, &Options{
		ID:     id,
		Config: s.cfg,
		Log:    s.log,
	})
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	cell := actor.NewCell(tx, &actor.CellOptions{
		Executor:  s.exec,
		Scheduler: s.sched,
		Log:       s.log,
	})
	if err := cell.Bind(actor.NewPipeLine(s.downstream, cell, s.upstream)); err != nil {
		return nil, errtrace.Wrap(err)
	}

	ent := &txEntry{tx: tx, cell: cell}
	cell.OnStop(func() { s.reap(id, ent) })
	cell.Tell(ev)
	return ent, nil
}

// reap runs once when the transaction cell stops.
// The key may already be taken by a replacement, it is kept then.
func (s *Supervisor) reap(id sip.TransactionID, ent *txEntry) {
	s.stats.terminated(ent.tx.Type())
	if s.txs.DeleteIf(id, func(cur *txEntry) bool { return cur == ent }) {
		s.log.LogAttrs(context.Background(), slog.LevelDebug, "transaction removed", slog.Any("transaction", ent.tx))
	}
}

func (s *Supervisor) routeResponse(ctx context.Context, id sip.TransactionID, ev event.SipMessage) error {
	if ent, ok := s.txs.Get(id); ok && ent.cell.Tell(ev) {
		return nil
	}

	s.stats.orphanedRes.Add(1)

	s.log.LogAttrs(ctx, slog.LevelDebug,
		"silently discard response due to missing corresponding transaction",
		slog.Any("transaction", id),
		slog.Any("response", ev),
	)
	return errtrace.Wrap(ErrTransactionNotFound)
}

func (s *Supervisor) routeAck(ctx context.Context, id sip.TransactionID, ev event.SipMessage) {
	if ent, ok := s.txs.Get(id); ok && ent.cell.Tell(ev) {
		return
	}

	s.stats.passedAcks.Add(1)

	s.log.LogAttrs(ctx, slog.LevelDebug, "pass ACK outside of transaction", slog.Any("request", ev))

	if !s.upstream.Tell(ev) {
		s.log.LogAttrs(ctx, slog.LevelWarn, "upstream refused ACK, dropped", slog.Any("request", ev))
	}
}

func (s *Supervisor) routeTransportError(ctx context.Context, ev event.TransportError) error {
	if ev.Msg == nil {
		return errtrace.Wrap(sip.NewInvalidArgumentError("transport error without message"))
	}
	id, err := sip.TransactionIDFromMessage(ev.Msg)
	if err != nil {
		return errtrace.Wrap(err)
	}
	if ent, ok := s.txs.Get(id); ok && ent.cell.Tell(ev) {
		return nil
	}

	s.log.LogAttrs(ctx, slog.LevelDebug,
		"silently discard transport error due to missing corresponding transaction",
		slog.Any("transaction", id),
		slog.Any("error", ev.Err),
	)
	return errtrace.Wrap(ErrTransactionNotFound)
}

// Lookup returns the live transaction with the key.
func (s *Supervisor) Lookup(id sip.TransactionID) (Transaction, bool) {
	ent, ok := s.txs.Get(id)
	if !ok {
		return nil, false
	}
	return ent.tx, true
}

// Len returns the number of registered transactions.
func (s *Supervisor) Len() int { return s.txs.Size() }

// Transactions iterates over registered transactions.
func (s *Supervisor) Transactions() iter.Seq[Transaction] {
	return func(yield func(Transaction) bool) {
		for _, ent := range s.txs.Items() {
			if !yield(ent.tx) {
				return
			}
		}
	}
}

// Stats returns a snapshot of supervisor counters.
func (s *Supervisor) Stats() Stats { return s.stats.snapshot() }

// OnNewTransaction binds a callback to be called when a transaction is created.
// The callback is called before the transaction handles its founding request.
// The callback can be unbound by calling the returned unbind function.
func (s *Supervisor) OnNewTransaction(fn TransactionHandler) (unbind func()) {
	return s.onNewTx.Add(fn)
}

// Close stops admission of new events, terminates all live transactions
// and waits until they are removed or the context is done.
func (s *Supervisor) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.closeErr = s.close(ctx)
	})
	return errtrace.Wrap(s.closeErr)
}

func (s *Supervisor) close(ctx context.Context) error {
	for _, ent := range s.txs.Items() {
		ent.cell.Tell(event.Terminate{Reason: ErrSupervisorClosed})
	}

	var errs []error
	if err := s.waitEmpty(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for %d transactions: %w", s.Len(), err))
	}
	if s.ownSched != nil {
		s.ownSched.Close()
	}
	return errtrace.Wrap(errorutil.JoinPrefix("failed to close supervisor:", errs...))
}

func (s *Supervisor) waitEmpty(ctx context.Context) error {
	if s.Len() == 0 {
		return nil
	}

	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return errtrace.Wrap(ctx.Err())
		case <-tick.C:
			if s.Len() == 0 {
				return nil
			}
		}
	}
}
