package sip

import (
	"strings"

	"github.com/ghettovoice/sipstack/internal/types"
)

type (
	RequestMethod  = types.RequestMethod
	ResponseStatus = types.ResponseStatus
	ResponseReason = types.ResponseReason
	TransportProto = types.TransportProto
)

const (
	RequestMethodAck      = types.RequestMethodAck
	RequestMethodBye      = types.RequestMethodBye
	RequestMethodCancel   = types.RequestMethodCancel
	RequestMethodInvite   = types.RequestMethodInvite
	RequestMethodOptions  = types.RequestMethodOptions
	RequestMethodRegister = types.RequestMethodRegister
)

const (
	ResponseStatusTrying              = types.ResponseStatusTrying
	ResponseStatusRinging             = types.ResponseStatusRinging
	ResponseStatusSessionProgress     = types.ResponseStatusSessionProgress
	ResponseStatusOK                  = types.ResponseStatusOK
	ResponseStatusAccepted            = types.ResponseStatusAccepted
	ResponseStatusMovedTemporarily    = types.ResponseStatusMovedTemporarily
	ResponseStatusBadRequest          = types.ResponseStatusBadRequest
	ResponseStatusNotFound            = types.ResponseStatusNotFound
	ResponseStatusBusyHere            = types.ResponseStatusBusyHere
	ResponseStatusRequestTerminated   = types.ResponseStatusRequestTerminated
	ResponseStatusServerInternalError = types.ResponseStatusServerInternalError
	ResponseStatusServiceUnavailable  = types.ResponseStatusServiceUnavailable
	ResponseStatusDecline             = types.ResponseStatusDecline
)

const (
	TransportProtoUDP = types.TransportProtoUDP
	TransportProtoTCP = types.TransportProtoTCP
	TransportProtoTLS = types.TransportProtoTLS
	TransportProtoWS  = types.TransportProtoWS
	TransportProtoWSS = types.TransportProtoWSS
)

// MagicCookie is the branch prefix of RFC 3261 compliant requests.
const MagicCookie = "z9hG4bK"

// IsRFC3261Branch reports whether the branch was generated by an RFC 3261 compliant element.
func IsRFC3261Branch(branch string) bool {
	return strings.HasPrefix(branch, MagicCookie) && len(branch) > len(MagicCookie)
}

// Via is the part of the topmost Via header field used for transaction matching.
type Via struct {
	Transport TransportProto
	// SentBy is the host[:port] of the Via header.
	SentBy string
	Branch string
}

// Message is a parsed SIP message as seen by the transaction layer.
// Implementations must be safe for concurrent reads.
type Message interface {
	// Method returns the request method for requests
	// and the CSeq method for responses.
	Method() RequestMethod
	// TopVia returns the topmost Via header field.
	TopVia() (Via, bool)
	CallID() string
	CSeq() (uint32, RequestMethod)
	FromTag() string
}

// Request is an inbound SIP request.
type Request interface {
	Message
	// NewResponse builds a response to the request with the default reason phrase.
	NewResponse(sts ResponseStatus) (Response, error)
}

// Response is a SIP response.
type Response interface {
	Message
	Status() ResponseStatus
}

// IsInvite reports whether msg is an INVITE request.
func IsInvite(msg Message) bool {
	_, ok := msg.(Request)
	return ok && msg.Method().Equal(RequestMethodInvite)
}

// IsAck reports whether msg is an ACK request.
func IsAck(msg Message) bool {
	_, ok := msg.(Request)
	return ok && msg.Method().Equal(RequestMethodAck)
}

// IsResponse reports whether msg is a response.
func IsResponse(msg Message) bool {
	_, ok := msg.(Response)
	return ok
}
