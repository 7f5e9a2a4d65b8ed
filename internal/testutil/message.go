package testutil

import (
	"net/netip"

	"github.com/ghettovoice/sipstack/sip"
)

var (
	LocalAddr  = netip.MustParseAddrPort("127.0.0.1:5060")
	RemoteAddr = netip.MustParseAddrPort("127.0.1.1:5061")
)

// Conn returns a connection over the transport between [LocalAddr] and [RemoteAddr].
func Conn(proto sip.TransportProto) sip.Connection {
	return sip.Connection{
		ID:         string(proto) + ":" + RemoteAddr.String(),
		Transport:  proto,
		LocalAddr:  LocalAddr,
		RemoteAddr: RemoteAddr,
	}
}

// NewRequest builds a request the way SIPp sends it from [RemoteAddr].
func NewRequest(method sip.RequestMethod, branch string, proto sip.TransportProto) *sip.BasicRequest {
	return &sip.BasicRequest{
		Line: sip.RequestLine{Method: method, URI: "sip:service@127.0.0.1:5060"},
		Headers: sip.Headers{
			Via:     sip.Via{Transport: proto, SentBy: RemoteAddr.String(), Branch: branch},
			CallID:  "1-25980@127.0.1.1",
			FromTag: "25980SIPpTag001",
			CSeq:    sip.CSeq{Num: 1, Method: method},
		},
	}
}

// NewResponse builds a response to the request. It panics on invalid status.
func NewResponse(req sip.Request, sts sip.ResponseStatus) sip.Response {
	res, err := req.NewResponse(sts)
	if err != nil {
		panic(err)
	}
	return res
}
