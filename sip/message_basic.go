package sip

import (
	"fmt"
	"log/slog"
	"strings"

	"braces.dev/errtrace"
	"github.com/google/uuid"
)

// Headers are the header fields relevant for transaction handling.
type Headers struct {
	Via     Via
	CallID  string
	FromTag string
	ToTag   string
	CSeq    CSeq
}

// CSeq is the CSeq header field value.
type CSeq struct {
	Num    uint32
	Method RequestMethod
}

// RequestLine is the start line of a request.
type RequestLine struct {
	Method RequestMethod
	URI    string
}

// StatusLine is the start line of a response.
type StatusLine struct {
	Status ResponseStatus
	Reason ResponseReason
}

// BasicRequest is an in-memory [Request] for messages built in process,
// e.g. by applications and tests.
type BasicRequest struct {
	Line    RequestLine
	Headers Headers
	Body    []byte
}

func (r *BasicRequest) Method() RequestMethod { return r.Line.Method }

func (r *BasicRequest) TopVia() (Via, bool) { return r.Headers.Via, r.Headers.Via.SentBy != "" }

func (r *BasicRequest) CallID() string { return r.Headers.CallID }

func (r *BasicRequest) CSeq() (uint32, RequestMethod) {
	return r.Headers.CSeq.Num, r.Headers.CSeq.Method
}

func (r *BasicRequest) FromTag() string { return r.Headers.FromTag }

func (r *BasicRequest) ToTag() string { return r.Headers.ToTag }

// NewResponse creates a response to the request.
// Every response except 100 Trying gets a To tag if the request had none.
func (r *BasicRequest) NewResponse(sts ResponseStatus) (Response, error) {
	if !sts.IsValid() {
		return nil, errtrace.Wrap(NewInvalidArgumentError("invalid response status %d", sts))
	}

	hdrs := r.Headers
	if hdrs.ToTag == "" && sts != ResponseStatusTrying {
		hdrs.ToTag = NewTag()
	}
	return &BasicResponse{
		Line:    StatusLine{Status: sts, Reason: sts.Reason()},
		Headers: hdrs,
	}, nil
}

func (r *BasicRequest) String() string {
	return fmt.Sprintf("%s %s (branch=%s, call-id=%s, cseq=%d)",
		r.Line.Method, r.Line.URI, r.Headers.Via.Branch, r.Headers.CallID, r.Headers.CSeq.Num)
}

// LogValue implements [slog.LogValuer].
func (r *BasicRequest) LogValue() slog.Value {
	if r == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Any("method", r.Line.Method),
		slog.String("uri", r.Line.URI),
		slog.String("branch", r.Headers.Via.Branch),
		slog.String("call_id", r.Headers.CallID),
	)
}

// BasicResponse is an in-memory [Response].
type BasicResponse struct {
	Line    StatusLine
	Headers Headers
	Body    []byte
}

func (r *BasicResponse) Method() RequestMethod { return r.Headers.CSeq.Method }

func (r *BasicResponse) Status() ResponseStatus { return r.Line.Status }

func (r *BasicResponse) TopVia() (Via, bool) { return r.Headers.Via, r.Headers.Via.SentBy != "" }

func (r *BasicResponse) CallID() string { return r.Headers.CallID }

func (r *BasicResponse) CSeq() (uint32, RequestMethod) {
	return r.Headers.CSeq.Num, r.Headers.CSeq.Method
}

func (r *BasicResponse) FromTag() string { return r.Headers.FromTag }

func (r *BasicResponse) ToTag() string { return r.Headers.ToTag }

func (r *BasicResponse) String() string {
	return fmt.Sprintf("%d %s (branch=%s, cseq=%d %s)",
		r.Line.Status, r.Line.Reason, r.Headers.Via.Branch, r.Headers.CSeq.Num, r.Headers.CSeq.Method)
}

// LogValue implements [slog.LogValuer].
func (r *BasicResponse) LogValue() slog.Value {
	if r == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.Any("status", r.Line.Status),
		slog.Any("method", r.Headers.CSeq.Method),
		slog.String("branch", r.Headers.Via.Branch),
	)
}

// NewAck builds an ACK for a non-2xx final response to the INVITE.
// It reuses the INVITE branch, so the ACK matches the INVITE transaction.
func NewAck(invite *BasicRequest, res Response) *BasicRequest {
	hdrs := invite.Headers
	hdrs.CSeq.Method = RequestMethodAck
	if v, ok := res.(interface{ ToTag() string }); ok {
		hdrs.ToTag = v.ToTag()
	}
	return &BasicRequest{
		Line:    RequestLine{Method: RequestMethodAck, URI: invite.Line.URI},
		Headers: hdrs,
	}
}

// NewTag generates a random tag parameter value.
func NewTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
