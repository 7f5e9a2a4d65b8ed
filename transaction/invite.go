package transaction

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipstack/actor"
	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/sip"
)

// InviteServerTransaction represents an INVITE server transaction.
// It implements the server transaction state machine defined in RFC 3261 section 17.2.1
// plus patches from RFC 6026.
type InviteServerTransaction struct {
	*serverTransact

	tmrGInterval time.Duration
	tmrGCount    atomic.Uint32
}

// NewInviteServerTransaction creates a new INVITE server transaction in [StateInit].
//
// The founding event must carry an INVITE request. It must be the first event
// the transaction receives. Options are optional, if nil, default values are used (see [Options]).
func NewInviteServerTransaction(ev event.SipMessage, opts *Options) (*InviteServerTransaction, error) {
	if !sip.IsInvite(ev.Msg) {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError(ErrMethodNotAllowed))
	}

	tx := new(InviteServerTransaction)
	srvTx, err := newServerTransact(TypeServerInvite, tx, StateInit, ev, opts)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	tx.serverTransact = srvTx
	tx.initFSM()
	return tx, nil
}

func (tx *InviteServerTransaction) initFSM() {
	tx.permit(StateInit, StateProceeding, StateTerminated)

	tx.permit(StateProceeding, StateAccepted, StateCompleted, StateTerminated).
		OnEntry(tx.actProceeding).
		OnExit(tx.actLeaveProceeding)

	tx.permit(StateAccepted, StateTerminated).
		OnEntry(tx.actAccepted).
		OnExit(tx.actLeaveAccepted)

	tx.permit(StateCompleted, StateConfirmed, StateTerminated).
		OnEntry(tx.actCompleted).
		OnExit(tx.actLeaveCompleted)

	tx.permit(StateConfirmed, StateTerminated).
		OnEntry(tx.actConfirmed).
		OnExit(tx.actLeaveConfirmed)
}

// TimerGCount returns how many times Timer G fired.
func (tx *InviteServerTransaction) TimerGCount() uint32 { return tx.tmrGCount.Load() }

// Receive implements [actor.Actor].
func (tx *InviteServerTransaction) Receive(actx actor.Context, ev event.Event) {
	tx.receive(actx, ev, tx.handle)
}

func (tx *InviteServerTransaction) handle(ctx context.Context, ev event.Event) {
	switch tx.State() {
	case StateInit:
		tx.recvInit(ctx, ev)
	case StateProceeding:
		tx.recvProceeding(ctx, ev)
	case StateAccepted:
		tx.recvAccepted(ctx, ev)
	case StateCompleted:
		tx.recvCompleted(ctx, ev)
	case StateConfirmed:
		tx.recvConfirmed(ctx, ev)
	case StateTrying, StateTerminated:
		tx.unexpected(ctx, ev)
	}
}

func (tx *InviteServerTransaction) recvInit(ctx context.Context, ev event.Event) {
	msg, ok := ev.(event.SipMessage)
	if !ok || !tx.isFounding(msg.Msg) {
		tx.unexpected(ctx, ev)
		return
	}

	tx.passUpstream(ctx, msg)
	tx.become(ctx, StateProceeding)
}

func (tx *InviteServerTransaction) recvProceeding(ctx context.Context, ev event.Event) {
	switch ev := ev.(type) {
	case event.SipMessage:
		if res, ok := ev.Response(); ok {
			tx.respondProceeding(ctx, res)
			return
		}
		if sip.IsAck(ev.Msg) {
			tx.unexpected(ctx, ev)
			return
		}
		tx.resendRes(ctx)
	case event.Timer:
		switch ev.Timer {
		case event.Timer100Trying:
			if tx.LastResponse() == nil {
				tx.send100(ctx)
			}
		case event.TimerStale:
			tx.timedOut(ctx)
		default:
			tx.unexpected(ctx, ev)
		}
	case event.TransportError:
		tx.transportFailed(ctx, ev, false)
	default:
		tx.unexpected(ctx, ev)
	}
}

func (tx *InviteServerTransaction) respondProceeding(ctx context.Context, res sip.Response) {
	sts := res.Status()
	if !sts.IsValid() {
		tx.log.LogAttrs(ctx, slog.LevelWarn,
			"invalid response status, dropped",
			slog.Any("transaction", tx),
			slog.Any("response", res),
		)
		return
	}

	tx.stopTimer(ctx, event.Timer100Trying)
	tx.relayRes(ctx, res)

	switch {
	case sts.IsSuccessful():
		tx.become(ctx, StateAccepted)
	case sts.IsFinal():
		tx.become(ctx, StateCompleted)
	}
}

func (tx *InviteServerTransaction) send100(ctx context.Context) {
	res, err := tx.req.NewResponse(sip.ResponseStatusTrying)
	if err != nil {
		tx.log.LogAttrs(ctx, slog.LevelError,
			"failed to create 100 Trying response",
			slog.Any("transaction", tx),
			slog.Any("error", err),
		)
		return
	}
	tx.relayRes(ctx, res)
}

func (tx *InviteServerTransaction) recvAccepted(ctx context.Context, ev event.Event) {
	switch ev := ev.(type) {
	case event.SipMessage:
		if res, ok := ev.Response(); ok {
			if res.Status().IsSuccessful() {
				tx.relayRes(ctx, res)
			} else {
				tx.absorb(ctx, ev)
			}
			return
		}
		if sip.IsAck(ev.Msg) {
			// 2xx ACK of RFC 2543 peers matches the INVITE key
			tx.passUpstream(ctx, ev)
			return
		}
		tx.absorb(ctx, ev)
	case event.Timer:
		if ev.Timer == event.TimerL {
			tx.become(ctx, StateTerminated)
			return
		}
		tx.unexpected(ctx, ev)
	case event.TransportError:
		tx.transportFailed(ctx, ev, false)
	default:
		tx.unexpected(ctx, ev)
	}
}

func (tx *InviteServerTransaction) recvCompleted(ctx context.Context, ev event.Event) {
	switch ev := ev.(type) {
	case event.SipMessage:
		switch {
		case sip.IsResponse(ev.Msg):
			tx.absorb(ctx, ev)
		case sip.IsAck(ev.Msg):
			tx.become(ctx, StateConfirmed)
		default:
			tx.resendRes(ctx)
		}
	case event.Timer:
		switch ev.Timer {
		case event.TimerG:
			tx.tmrGCount.Add(1)
			tx.resendRes(ctx)

			tx.tmrGInterval = min(2*tx.tmrGInterval, tx.cfg.Timings.T2())
			tx.startTimer(ctx, event.TimerG, tx.tmrGInterval)
		case event.TimerH:
			tx.timedOut(ctx)
		default:
			tx.unexpected(ctx, ev)
		}
	case event.TransportError:
		tx.transportFailed(ctx, ev, true)
	default:
		tx.unexpected(ctx, ev)
	}
}

func (tx *InviteServerTransaction) recvConfirmed(ctx context.Context, ev event.Event) {
	switch ev := ev.(type) {
	case event.Timer:
		if ev.Timer == event.TimerI {
			tx.become(ctx, StateTerminated)
			return
		}
		tx.unexpected(ctx, ev)
	default:
		// INVITE and ACK retransmissions, late responses and transport errors
		tx.absorb(ctx, ev)
	}
}

//nolint:unparam
func (tx *InviteServerTransaction) actProceeding(ctx context.Context, _ ...any) error {
	if tx.cfg.Send100TryingImmediately {
		tx.send100(ctx)
	} else {
		tx.startTimer(ctx, event.Timer100Trying, tx.cfg.Timings.Time100())
	}
	tx.startStaleTimer(ctx)
	return nil
}

//nolint:unparam
func (tx *InviteServerTransaction) actLeaveProceeding(ctx context.Context, _ ...any) error {
	tx.stopTimer(ctx, event.Timer100Trying)
	tx.stopTimer(ctx, event.TimerStale)
	return nil
}

//nolint:unparam
func (tx *InviteServerTransaction) actAccepted(ctx context.Context, _ ...any) error {
	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction accepted", slog.Any("transaction", tx))

	tx.startTimer(ctx, event.TimerL, tx.cfg.Timings.TimeL())
	return nil
}

//nolint:unparam
func (tx *InviteServerTransaction) actLeaveAccepted(ctx context.Context, _ ...any) error {
	tx.stopTimer(ctx, event.TimerL)
	return nil
}

//nolint:unparam
func (tx *InviteServerTransaction) actCompleted(ctx context.Context, _ ...any) error {
	if !tx.reliable() {
		tx.tmrGInterval = tx.cfg.Timings.TimeG()
		tx.startTimer(ctx, event.TimerG, tx.tmrGInterval)
	}
	tx.startTimer(ctx, event.TimerH, tx.cfg.Timings.TimeH())
	return nil
}

//nolint:unparam
func (tx *InviteServerTransaction) actLeaveCompleted(ctx context.Context, _ ...any) error {
	tx.stopTimer(ctx, event.TimerG)
	tx.stopTimer(ctx, event.TimerH)
	return nil
}

//nolint:unparam
func (tx *InviteServerTransaction) actConfirmed(ctx context.Context, _ ...any) error {
	tx.log.LogAttrs(ctx, slog.LevelDebug, "transaction confirmed", slog.Any("transaction", tx))

	var timeI time.Duration
	if !tx.reliable() {
		timeI = tx.cfg.Timings.TimeI()
	}
	tx.startTimer(ctx, event.TimerI, timeI)
	return nil
}

//nolint:unparam
func (tx *InviteServerTransaction) actLeaveConfirmed(ctx context.Context, _ ...any) error {
	tx.stopTimer(ctx, event.TimerI)
	return nil
}

// LogValue implements [slog.LogValuer].
func (tx *InviteServerTransaction) LogValue() slog.Value {
	if tx == nil || tx.serverTransact == nil {
		return slog.Value{}
	}
	attrs := tx.serverTransact.LogValue().Group()
	if n := tx.TimerGCount(); n > 0 {
		attrs = append(attrs, slog.Any("timer_g_count", n))
	}
	return slog.GroupValue(attrs...)
}
