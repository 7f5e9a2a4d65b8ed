package transaction_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/internal/testutil"
	"github.com/ghettovoice/sipstack/sip"
	"github.com/ghettovoice/sipstack/transaction"
)

func TestNonInviteServerTransaction_Unreliable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sip.TransportProtoUDP, transaction.Config{})
	branch := sip.MagicCookie + ".options-udp"
	req := h.newRequest(sip.RequestMethodOptions, branch)

	h.request(req)
	tx := h.lookup(req)
	h.assertState(tx, transaction.StateTrying)
	if got := tx.Type(); got != transaction.TypeServerNonInvite {
		t.Errorf("tx.Type() = %v, want %v", got, transaction.TypeServerNonInvite)
	}
	if diff := cmp.Diff([]event.SipTimer{event.TimerStale}, h.sched.PendingNames()); diff != "" {
		t.Fatalf("pending timers mismatch (-want +got):\n%s", diff)
	}

	// nothing to resend in trying
	h.request(h.newRequest(sip.RequestMethodOptions, branch))
	if n := h.net.Len(); n != 0 {
		t.Fatalf("downstream events = %d, want 0", n)
	}

	h.respond(req, sip.ResponseStatusTrying)
	h.assertState(tx, transaction.StateProceeding)
	h.request(h.newRequest(sip.RequestMethodOptions, branch))

	h.respond(req, sip.ResponseStatusOK)
	h.assertState(tx, transaction.StateCompleted)
	if diff := cmp.Diff([]event.SipTimer{event.TimerJ}, h.sched.PendingNames()); diff != "" {
		t.Fatalf("pending timers mismatch (-want +got):\n%s", diff)
	}
	if tmr, _ := h.sched.Last(event.TimerJ); tmr.Delay != timings.TimeJ() {
		t.Errorf("timer J delay = %v, want %v", tmr.Delay, timings.TimeJ())
	}

	// retransmissions get the final response, late responses are absorbed
	h.request(h.newRequest(sip.RequestMethodOptions, branch))
	h.respond(req, sip.ResponseStatusNotFound)

	want := statuses(
		sip.ResponseStatusTrying,
		sip.ResponseStatusTrying,
		sip.ResponseStatusOK,
		sip.ResponseStatusOK,
	)
	if diff := cmp.Diff(want, h.net.Statuses()); diff != "" {
		t.Errorf("downstream responses mismatch (-want +got):\n%s", diff)
	}
	if n := len(h.app.Requests()); n != 1 {
		t.Errorf("upstream requests = %d, want 1", n)
	}

	h.sched.Advance(timings.TimeJ() - time.Millisecond)
	h.assertState(tx, transaction.StateCompleted)
	h.sched.Advance(time.Millisecond)
	h.assertState(tx, transaction.StateTerminated)
	h.assertGone(req)
}

func TestNonInviteServerTransaction_Reliable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sip.TransportProtoTCP, transaction.Config{}, sip.ResponseStatusOK)
	req := h.newRequest(sip.RequestMethodRegister, sip.MagicCookie+".register-tcp")

	h.request(req)
	tx := h.lookup(req)
	h.assertState(tx, transaction.StateCompleted)

	if tmr, _ := h.sched.Last(event.TimerJ); tmr.Delay != 0 {
		t.Errorf("timer J delay = %v, want 0", tmr.Delay)
	}
	if tmr, _ := h.sched.Last(event.TimerStale); !tmr.Cancelled() {
		t.Error("stale timer was not cancelled")
	}

	h.sched.Advance(0)
	h.assertState(tx, transaction.StateTerminated)
	h.assertGone(req)

	if diff := cmp.Diff(statuses(sip.ResponseStatusOK), h.net.Statuses()); diff != "" {
		t.Errorf("downstream responses mismatch (-want +got):\n%s", diff)
	}
	if got := tx.LastResponse().Status(); got != sip.ResponseStatusOK {
		t.Errorf("tx.LastResponse().Status() = %v, want %v", got, sip.ResponseStatusOK)
	}
}

func TestNonInviteServerTransaction_FinalFromTrying(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sip.TransportProtoUDP, transaction.Config{}, sip.ResponseStatusNotFound)
	req := h.newRequest(sip.RequestMethodBye, sip.MagicCookie+".bye-404")

	h.request(req)
	h.assertState(h.lookup(req), transaction.StateCompleted)
	if diff := cmp.Diff(statuses(sip.ResponseStatusNotFound), h.net.Statuses()); diff != "" {
		t.Errorf("downstream responses mismatch (-want +got):\n%s", diff)
	}
}

func TestNonInviteServerTransaction_TransportError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		respond []sip.ResponseStatus
		want    transaction.State
	}{
		{"trying", nil, transaction.StateTrying},
		{"proceeding", statuses(sip.ResponseStatusTrying), transaction.StateProceeding},
		{"completed", statuses(sip.ResponseStatusAccepted), transaction.StateCompleted},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, sip.TransportProtoUDP, transaction.Config{}, c.respond...)
			req := h.newRequest(sip.RequestMethodOptions, sip.MagicCookie+".transport-error-"+c.name)
			h.request(req)
			tx := h.lookup(req)
			h.assertState(tx, c.want)

			h.dispatch(event.TransportError{Conn: h.conn(), Msg: req, Err: io.ErrUnexpectedEOF})

			h.assertState(tx, transaction.StateTerminated)
			h.assertGone(req)
			errs := h.app.Errors()
			if len(errs) != 1 {
				t.Fatalf("upstream errors = %v, want 1 error", errs)
			}
			if !errors.Is(errs[0].Err, transaction.ErrTransportFailed) || !errors.Is(errs[0].Err, io.ErrUnexpectedEOF) {
				t.Errorf("upstream error = %v, want %v wrapped with %v", errs[0].Err, io.ErrUnexpectedEOF, transaction.ErrTransportFailed)
			}
			if n := len(h.sched.Pending()); n != 0 {
				t.Errorf("pending timers = %d, want 0", n)
			}
		})
	}
}

func TestNonInviteServerTransaction_StaleTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, sip.TransportProtoUDP, transaction.Config{}, sip.ResponseStatusTrying)
	req := h.newRequest(sip.RequestMethodOptions, sip.MagicCookie+".stale")
	h.request(req)
	tx := h.lookup(req)

	h.sched.Advance(transaction.DefaultStaleTimeout - time.Second)
	h.assertState(tx, transaction.StateProceeding)
	h.sched.Advance(time.Second)
	h.assertState(tx, transaction.StateTerminated)

	errs := h.app.Errors()
	if len(errs) != 1 {
		t.Fatalf("upstream errors = %v, want 1 error", errs)
	}
	if diff := cmp.Diff(transaction.ErrTransactionTimedOut, errs[0].Err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("upstream error mismatch (-want +got):\n%s", diff)
	}
}

func TestNewNonInviteServerTransaction_Errors(t *testing.T) {
	t.Parallel()

	conn := testutil.Conn(sip.TransportProtoUDP)
	invite := testutil.NewRequest(sip.RequestMethodInvite, sip.MagicCookie+".err", sip.TransportProtoUDP)

	cases := []struct {
		name string
		msg  sip.Message
		want error
	}{
		{"invite", invite, transaction.ErrMethodNotAllowed},
		{"ack", sip.NewAck(invite, testutil.NewResponse(invite, sip.ResponseStatusBusyHere)), transaction.ErrMethodNotAllowed},
		{"response", testutil.NewResponse(invite, sip.ResponseStatusOK), transaction.ErrInvalidArgument},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			tx, err := transaction.NewNonInviteServerTransaction(event.NewSipMessage(c.msg, conn), nil)
			if diff := cmp.Diff(c.want, err, cmpopts.EquateErrors()); diff != "" {
				t.Errorf("transaction.NewNonInviteServerTransaction(msg, nil) error mismatch (-want +got):\n%s", diff)
			}
			if tx != nil {
				t.Errorf("transaction.NewNonInviteServerTransaction(msg, nil) = %v, want nil", tx)
			}
		})
	}
}

func TestNewServerTransaction(t *testing.T) {
	t.Parallel()

	conn := testutil.Conn(sip.TransportProtoUDP)
	cases := []struct {
		method sip.RequestMethod
		want   transaction.Type
	}{
		{sip.RequestMethodInvite, transaction.TypeServerInvite},
		{sip.RequestMethodBye, transaction.TypeServerNonInvite},
		{sip.RequestMethodCancel, transaction.TypeServerNonInvite},
	}
	for _, c := range cases {
		t.Run(string(c.method), func(t *testing.T) {
			t.Parallel()

			req := testutil.NewRequest(c.method, sip.MagicCookie+".factory", sip.TransportProtoUDP)
			tx, err := transaction.NewServerTransaction(event.NewSipMessage(req, conn), nil)
			if err != nil {
				t.Fatalf("transaction.NewServerTransaction(%v, nil) error = %v, want nil", c.method, err)
			}
			if got := tx.Type(); got != c.want {
				t.Errorf("tx.Type() = %v, want %v", got, c.want)
			}
			if got := tx.Request(); got != sip.Request(req) {
				t.Errorf("tx.Request() = %v, want %v", got, req)
			}
			if got := tx.LastResponse(); got != nil {
				t.Errorf("tx.LastResponse() = %v, want nil", got)
			}
		})
	}
}
