package testutil

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/sip"
)

// Recorder is an [actor.Ref] that records every event it is told.
// It stands for the network or the application side of a pipeline.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
	notify chan struct{}

	onEvent func(ev event.Event)
}

// NewRecorder creates a recorder. The optional callback is called
// for every event after it was recorded.
func NewRecorder(onEvent func(ev event.Event)) *Recorder {
	return &Recorder{
		notify:  make(chan struct{}, 1),
		onEvent: onEvent,
	}
}

// Tell implements [actor.Ref].
func (r *Recorder) Tell(ev event.Event) bool {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}

	if r.onEvent != nil {
		r.onEvent(ev)
	}
	return true
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Messages returns the recorded SIP messages.
func (r *Recorder) Messages() []event.SipMessage {
	var msgs []event.SipMessage
	for _, ev := range r.Events() {
		if m, ok := ev.(event.SipMessage); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// Statuses returns status codes of the recorded responses in order.
func (r *Recorder) Statuses() []sip.ResponseStatus {
	var sts []sip.ResponseStatus
	for _, m := range r.Messages() {
		if res, ok := m.Response(); ok {
			sts = append(sts, res.Status())
		}
	}
	return sts
}

// Requests returns the recorded requests.
func (r *Recorder) Requests() []sip.Request {
	var reqs []sip.Request
	for _, m := range r.Messages() {
		if req, ok := m.Request(); ok {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// Errors returns the recorded transaction errors.
func (r *Recorder) Errors() []event.Error {
	var errs []event.Error
	for _, ev := range r.Events() {
		if e, ok := ev.(event.Error); ok {
			errs = append(errs, e)
		}
	}
	return errs
}

// WaitLen blocks until at least n events were recorded or the timeout expires.
func (r *Recorder) WaitLen(t testing.TB, n int, timeout time.Duration) []event.Event {
	t.Helper()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if evs := r.Events(); len(evs) >= n {
			return evs
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			t.Fatalf("recorder got %d events, want at least %d", r.Len(), n)
			return nil
		}
	}
}

// AutoResponder returns a recorder callback that answers every request except ACK
// with the statuses in order, dispatching the responses back through dispatch.
func AutoResponder(
	dispatch func(ctx context.Context, ev event.Event) error,
	statuses ...sip.ResponseStatus,
) func(ev event.Event) {
	return func(ev event.Event) {
		m, ok := ev.(event.SipMessage)
		if !ok {
			return
		}
		req, ok := m.Request()
		if !ok || sip.IsAck(req) {
			return
		}
		for _, sts := range statuses {
			res, err := req.NewResponse(sts)
			if err != nil {
				continue
			}
			dispatch(context.Background(), event.NewSipMessage(res, m.Conn)) //nolint:errcheck
		}
	}
}
