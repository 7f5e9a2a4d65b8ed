// Package sipgo adapts messages of the github.com/emiago/sipgo/sip parser
// to the [sip.Message] interfaces consumed by the transaction layer.
package sipgo

//go:generate go tool errtrace -w .

import (
	"fmt"
	"log/slog"
	"strconv"

	"braces.dev/errtrace"
	sipmsg "github.com/emiago/sipgo/sip"

	"github.com/ghettovoice/sipstack/sip"
)

// Request wraps a parsed sipgo request.
type Request struct {
	msg *sipmsg.Request
}

// Response wraps a sipgo response.
type Response struct {
	msg *sipmsg.Response
}

var (
	_ sip.Request  = (*Request)(nil)
	_ sip.Response = (*Response)(nil)
)

// NewRequest wraps the request. The request must not be modified after wrapping.
func NewRequest(req *sipmsg.Request) *Request { return &Request{msg: req} }

// NewResponse wraps the response. The response must not be modified after wrapping.
func NewResponse(res *sipmsg.Response) *Response { return &Response{msg: res} }

// Parse parses a SIP message from the wire.
func Parse(data []byte) (sip.Message, error) {
	msg, err := sipmsg.NewParser().ParseSIP(data)
	if err != nil {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError(fmt.Errorf("%w: %w", sip.ErrInvalidMessage, err)))
	}
	return errtrace.Wrap2(Wrap(msg))
}

// Wrap wraps a sipgo message.
func Wrap(msg sipmsg.Message) (sip.Message, error) {
	switch m := msg.(type) {
	case *sipmsg.Request:
		return NewRequest(m), nil
	case *sipmsg.Response:
		return NewResponse(m), nil
	default:
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError("unsupported message type %T", msg))
	}
}

// Encode renders the message in the wire format.
// Only messages produced by this package are supported.
func Encode(msg sip.Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		return []byte(m.msg.String()), nil
	case *Response:
		return []byte(m.msg.String()), nil
	default:
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError("unsupported message type %T", msg))
	}
}

// Unwrap returns the wrapped sipgo request.
func (r *Request) Unwrap() *sipmsg.Request { return r.msg }

func (r *Request) Method() sip.RequestMethod { return sip.RequestMethod(r.msg.Method) }

func (r *Request) TopVia() (sip.Via, bool) { return topVia(r.msg.Via()) }

func (r *Request) CallID() string { return callID(r.msg.CallID()) }

func (r *Request) CSeq() (uint32, sip.RequestMethod) { return cseq(r.msg.CSeq()) }

func (r *Request) FromTag() string { return fromTag(r.msg.From()) }

// NewResponse implements [sip.Request].
// Every response except 100 Trying gets a To tag if the request had none.
func (r *Request) NewResponse(sts sip.ResponseStatus) (sip.Response, error) {
	if !sts.IsValid() {
		return nil, errtrace.Wrap(sip.NewInvalidArgumentError("invalid response status %d", sts))
	}

	res := sipmsg.NewResponseFromRequest(r.msg, int(sts), string(sts.Reason()), nil)
	if to := res.To(); to != nil && sts != sip.ResponseStatusTrying {
		if to.Params == nil {
			to.Params = sipmsg.HeaderParams{}
		}
		if _, ok := to.Params.Get("tag"); !ok {
			to.Params.Add("tag", sip.NewTag())
		}
	}
	return NewResponse(res), nil
}

func (r *Request) String() string { return r.msg.StartLine() }

// LogValue implements [slog.LogValuer].
func (r *Request) LogValue() slog.Value {
	if r == nil || r.msg == nil {
		return slog.Value{}
	}
	via, _ := r.TopVia()
	return slog.GroupValue(
		slog.Any("method", r.Method()),
		slog.String("uri", r.msg.Recipient.String()),
		slog.String("branch", via.Branch),
		slog.String("call_id", r.CallID()),
	)
}

// Unwrap returns the wrapped sipgo response.
func (r *Response) Unwrap() *sipmsg.Response { return r.msg }

func (r *Response) Method() sip.RequestMethod {
	_, mtd := r.CSeq()
	return mtd
}

func (r *Response) Status() sip.ResponseStatus { return sip.ResponseStatus(r.msg.StatusCode) } //nolint:gosec

func (r *Response) TopVia() (sip.Via, bool) { return topVia(r.msg.Via()) }

func (r *Response) CallID() string { return callID(r.msg.CallID()) }

func (r *Response) CSeq() (uint32, sip.RequestMethod) { return cseq(r.msg.CSeq()) }

func (r *Response) FromTag() string { return fromTag(r.msg.From()) }

func (r *Response) String() string { return r.msg.StartLine() }

// LogValue implements [slog.LogValuer].
func (r *Response) LogValue() slog.Value {
	if r == nil || r.msg == nil {
		return slog.Value{}
	}
	via, _ := r.TopVia()
	return slog.GroupValue(
		slog.Any("status", r.Status()),
		slog.Any("method", r.Method()),
		slog.String("branch", via.Branch),
	)
}

func topVia(hdr *sipmsg.ViaHeader) (sip.Via, bool) {
	if hdr == nil || hdr.Host == "" {
		return sip.Via{}, false
	}

	via := sip.Via{
		Transport: sip.TransportProto(hdr.Transport).ToUpper(),
		SentBy:    hdr.Host,
	}
	if hdr.Port > 0 {
		via.SentBy += ":" + strconv.Itoa(hdr.Port)
	}
	if hdr.Params != nil {
		via.Branch, _ = hdr.Params.Get("branch")
	}
	return via, true
}

func callID(hdr *sipmsg.CallIDHeader) string {
	if hdr == nil {
		return ""
	}
	return hdr.Value()
}

func cseq(hdr *sipmsg.CSeqHeader) (uint32, sip.RequestMethod) {
	if hdr == nil {
		return 0, ""
	}
	return hdr.SeqNo, sip.RequestMethod(hdr.MethodName)
}

func fromTag(hdr *sipmsg.FromHeader) string {
	if hdr == nil || hdr.Params == nil {
		return ""
	}
	tag, _ := hdr.Params.Get("tag")
	return tag
}
