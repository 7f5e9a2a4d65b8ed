// Package event defines the closed set of events that flow through actor pipelines.
//
// An event is either a SIP message, a timer token, a transport failure signalled
// from below, a transaction level error reported to the application or a
// forced termination request. All events are immutable values.
package event

import (
	"log/slog"
	"time"

	"github.com/ghettovoice/sipstack/sip"
)

// Event is implemented only by the types of this package.
type Event interface {
	slog.LogValuer
	event()
}

// SipMessage carries a SIP request or response together with the connection
// it arrived on or must be sent over.
type SipMessage struct {
	Msg     sip.Message
	Conn    sip.Connection
	Arrival time.Time
}

// NewSipMessage creates a message event stamped with the current time.
func NewSipMessage(msg sip.Message, conn sip.Connection) SipMessage {
	return SipMessage{Msg: msg, Conn: conn, Arrival: time.Now()}
}

func (SipMessage) event() {}

// Request returns the message as a request.
func (e SipMessage) Request() (sip.Request, bool) {
	req, ok := e.Msg.(sip.Request)
	return req, ok
}

// Response returns the message as a response.
func (e SipMessage) Response() (sip.Response, bool) {
	res, ok := e.Msg.(sip.Response)
	return res, ok
}

// LogValue implements [slog.LogValuer].
func (e SipMessage) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Any("conn", e.Conn)}
	if res, ok := e.Response(); ok {
		attrs = append(attrs, slog.Any("status", res.Status()), slog.Any("method", res.Method()))
	} else if e.Msg != nil {
		attrs = append(attrs, slog.Any("method", e.Msg.Method()))
	}
	if via, ok := e.msgVia(); ok {
		attrs = append(attrs, slog.String("branch", via.Branch))
	}
	return slog.GroupValue(attrs...)
}

func (e SipMessage) msgVia() (sip.Via, bool) {
	if e.Msg == nil {
		return sip.Via{}, false
	}
	return e.Msg.TopVia()
}

// SipTimer names a transaction timer.
type SipTimer string

const (
	Timer100Trying SipTimer = "timer_100"
	TimerG         SipTimer = "timer_g"
	TimerH         SipTimer = "timer_h"
	TimerI         SipTimer = "timer_i"
	TimerJ         SipTimer = "timer_j"
	TimerL         SipTimer = "timer_l"
	// TimerStale guards transactions that never see a final response.
	TimerStale SipTimer = "timer_stale"
)

// Timer is the token delivered when a scheduled timer fires.
type Timer struct {
	Timer SipTimer
}

func (Timer) event() {}

// LogValue implements [slog.LogValuer].
func (e Timer) LogValue() slog.Value { return slog.StringValue(string(e.Timer)) }

// TransportError reports a failure to send a message over a connection.
type TransportError struct {
	Conn sip.Connection
	// Msg is the message that failed to be sent, if known.
	Msg sip.Message
	Err error
}

func (TransportError) event() {}

func (e TransportError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("conn", e.Conn),
		slog.Any("error", e.Err),
	)
}

// Error reports a transaction level failure to the application.
type Error struct {
	ID  sip.TransactionID
	Err error
}

func (Error) event() {}

func (e Error) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("transaction", e.ID),
		slog.Any("error", e.Err),
	)
}

// Terminate requests immediate termination of the receiving transaction.
type Terminate struct {
	Reason error
}

func (Terminate) event() {}

func (e Terminate) LogValue() slog.Value {
	return slog.GroupValue(slog.Any("reason", e.Reason))
}
