package transaction

import (
	"context"
	"log/slog"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipstack/actor"
	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/sip"
)

// NonInviteServerTransaction represents a non-INVITE server transaction.
// It implements the server transaction state machine defined in RFC 3261 section 17.2.2.
type NonInviteServerTransaction struct {
	*serverTransact

	passed bool
}

// NewNonInviteServerTransaction creates a new non-INVITE server transaction in [StateTrying].
//
// The founding event must carry a request with any method except INVITE and ACK.
// It must be the first event the transaction receives.
// Options are optional, if nil, default values are used (see [Options]).
func NewNonInviteServerTransaction(ev event.SipMessage, opts *Options) (*NonInviteServerTransaction, error) {
	req, ok := ev.Request()
	if !ok || req == nil {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError("request expected"))
	}
	if sip.IsInvite(req) || sip.IsAck(req) {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError(ErrMethodNotAllowed))
	}

	tx := new(NonInviteServerTransaction)
	srvTx, err := newServerTransact(TypeServerNonInvite, tx, StateTrying, ev, opts)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	tx.serverTransact = srvTx
	tx.initFSM()
	return tx, nil
}

func (tx *NonInviteServerTransaction) initFSM() {
	tx.permit(StateTrying, StateProceeding, StateCompleted, StateTerminated)

	tx.permit(StateProceeding, StateCompleted, StateTerminated)

	tx.permit(StateCompleted, StateTerminated).
		OnEntry(tx.actCompleted).
		OnExit(tx.actLeaveCompleted)
}

// Receive implements [actor.Actor].
func (tx *NonInviteServerTransaction) Receive(actx actor.Context, ev event.Event) {
	tx.receive(actx, ev, tx.handle)
}

func (tx *NonInviteServerTransaction) handle(ctx context.Context, ev event.Event) {
	switch tx.State() {
	case StateTrying, StateProceeding:
		tx.recvPending(ctx, ev)
	case StateCompleted:
		tx.recvCompleted(ctx, ev)
	case StateInit, StateAccepted, StateConfirmed, StateTerminated:
		tx.unexpected(ctx, ev)
	}
}

// recvPending handles events in Trying and Proceeding states
// which differ only by the reaction to request retransmissions.
func (tx *NonInviteServerTransaction) recvPending(ctx context.Context, ev event.Event) {
	switch ev := ev.(type) {
	case event.SipMessage:
		if res, ok := ev.Response(); ok {
			tx.respond(ctx, res)
			return
		}
		if !tx.passed && tx.isFounding(ev.Msg) {
			tx.passed = true
			tx.passUpstream(ctx, ev)
			tx.startStaleTimer(ctx)
			return
		}
		if tx.State() == StateTrying {
			tx.absorb(ctx, ev)
			return
		}
		tx.resendRes(ctx)
	case event.Timer:
		if ev.Timer == event.TimerStale {
			tx.timedOut(ctx)
			return
		}
		tx.unexpected(ctx, ev)
	case event.TransportError:
		tx.transportFailed(ctx, ev, true)
	default:
		tx.unexpected(ctx, ev)
	}
}

func (tx *NonInviteServerTransaction) respond(ctx context.Context, res sip.Response) {
	sts := res.Status()
	if !sts.IsValid() {
		tx.log.LogAttrs(ctx, slog.LevelWarn,
			"invalid response status, dropped",
			slog.Any("transaction", tx),
			slog.Any("response", res),
		)
		return
	}

	tx.relayRes(ctx, res)

	switch {
	case sts.IsFinal():
		tx.become(ctx, StateCompleted)
	case tx.State() == StateTrying:
		tx.become(ctx, StateProceeding)
	}
}

func (tx *NonInviteServerTransaction) recvCompleted(ctx context.Context, ev event.Event) {
	switch ev := ev.(type) {
	case event.SipMessage:
		if sip.IsResponse(ev.Msg) {
			tx.absorb(ctx, ev)
			return
		}
		tx.resendRes(ctx)
	case event.Timer:
		if ev.Timer == event.TimerJ {
			tx.become(ctx, StateTerminated)
			return
		}
		tx.unexpected(ctx, ev)
	case event.TransportError:
		tx.transportFailed(ctx, ev, true)
	default:
		tx.unexpected(ctx, ev)
	}
}

//nolint:unparam
func (tx *NonInviteServerTransaction) actCompleted(ctx context.Context, _ ...any) error {
	tx.stopTimer(ctx, event.TimerStale)

	var timeJ time.Duration
	if !tx.reliable() {
		timeJ = tx.cfg.Timings.TimeJ()
	}
	tx.startTimer(ctx, event.TimerJ, timeJ)
	return nil
}

//nolint:unparam
func (tx *NonInviteServerTransaction) actLeaveCompleted(ctx context.Context, _ ...any) error {
	tx.stopTimer(ctx, event.TimerJ)
	return nil
}
