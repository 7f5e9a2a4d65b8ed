package sipgo_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/sipstack/codec/sipgo"
	"github.com/ghettovoice/sipstack/sip"
)

func rawInvite(branch string) []byte {
	return []byte(strings.Join([]string{
		"INVITE sip:service@127.0.0.1:5060 SIP/2.0",
		"Via: SIP/2.0/UDP 127.0.1.1:5061;branch=" + branch,
		"From: sipp <sip:sipp@127.0.1.1:5061>;tag=25980SIPpTag001",
		"To: service <sip:service@127.0.0.1:5060>",
		"Call-ID: 1-25980@127.0.1.1",
		"CSeq: 1 INVITE",
		"Contact: sip:sipp@127.0.1.1:5061",
		"Max-Forwards: 70",
		"Content-Length: 0",
		"",
		"",
	}, "\r\n"))
}

func TestParse_Request(t *testing.T) {
	t.Parallel()

	msg, err := sipgo.Parse(rawInvite("z9hG4bK-1-0"))
	if err != nil {
		t.Fatalf("sipgo.Parse(data) error = %v, want nil", err)
	}
	req, ok := msg.(*sipgo.Request)
	if !ok {
		t.Fatalf("sipgo.Parse(data) = %T, want *sipgo.Request", msg)
	}

	if got := req.Method(); got != sip.RequestMethodInvite {
		t.Errorf("req.Method() = %v, want %v", got, sip.RequestMethodInvite)
	}
	via, ok := req.TopVia()
	if !ok {
		t.Fatal("req.TopVia() = _, false, want true")
	}
	wantVia := sip.Via{Transport: sip.TransportProtoUDP, SentBy: "127.0.1.1:5061", Branch: "z9hG4bK-1-0"}
	if diff := cmp.Diff(wantVia, via); diff != "" {
		t.Errorf("req.TopVia() mismatch (-want +got):\n%s", diff)
	}
	if got, want := req.CallID(), "1-25980@127.0.1.1"; got != want {
		t.Errorf("req.CallID() = %q, want %q", got, want)
	}
	if got, want := req.FromTag(), "25980SIPpTag001"; got != want {
		t.Errorf("req.FromTag() = %q, want %q", got, want)
	}
	if num, mtd := req.CSeq(); num != 1 || mtd != sip.RequestMethodInvite {
		t.Errorf("req.CSeq() = (%d, %v), want (1, %v)", num, mtd, sip.RequestMethodInvite)
	}
	if !sip.IsInvite(req) {
		t.Error("sip.IsInvite(req) = false, want true")
	}
}

func TestRequest_NewResponse(t *testing.T) {
	t.Parallel()

	msg, err := sipgo.Parse(rawInvite("z9hG4bK-2-0"))
	if err != nil {
		t.Fatalf("sipgo.Parse(data) error = %v, want nil", err)
	}
	req := msg.(*sipgo.Request) //nolint:forcetypeassert

	res, err := req.NewResponse(sip.ResponseStatusRinging)
	if err != nil {
		t.Fatalf("req.NewResponse(180) error = %v, want nil", err)
	}
	data, err := sipgo.Encode(res)
	if err != nil {
		t.Fatalf("sipgo.Encode(res) error = %v, want nil", err)
	}

	parsed, err := sipgo.Parse(data)
	if err != nil {
		t.Fatalf("sipgo.Parse(sipgo.Encode(res)) error = %v, want nil", err)
	}
	got, ok := parsed.(*sipgo.Response)
	if !ok {
		t.Fatalf("sipgo.Parse(sipgo.Encode(res)) = %T, want *sipgo.Response", parsed)
	}
	if sts := got.Status(); sts != sip.ResponseStatusRinging {
		t.Errorf("res.Status() = %v, want %v", sts, sip.ResponseStatusRinging)
	}
	if mtd := got.Method(); mtd != sip.RequestMethodInvite {
		t.Errorf("res.Method() = %v, want %v", mtd, sip.RequestMethodInvite)
	}
	if tag, _ := got.Unwrap().To().Params.Get("tag"); tag == "" {
		t.Error("response To tag is empty")
	}

	reqID, err := sip.TransactionIDFromMessage(req)
	if err != nil {
		t.Fatalf("sip.TransactionIDFromMessage(req) error = %v, want nil", err)
	}
	resID, err := sip.TransactionIDFromMessage(got)
	if err != nil {
		t.Fatalf("sip.TransactionIDFromMessage(res) error = %v, want nil", err)
	}
	if diff := cmp.Diff(reqID, resID); diff != "" {
		t.Errorf("response transaction id mismatch (-want +got):\n%s", diff)
	}

	if _, err := req.NewResponse(0); !cmp.Equal(err, sip.ErrInvalidArgument, cmpopts.EquateErrors()) {
		t.Errorf("req.NewResponse(0) error = %v, want %v", err, sip.ErrInvalidArgument)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	msg, err := sipgo.Parse([]byte("definitely not SIP\r\n\r\n"))
	if diff := cmp.Diff(sip.ErrInvalidMessage, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("sipgo.Parse(garbage) error mismatch (-want +got):\n%s", diff)
	}
	if msg != nil {
		t.Errorf("sipgo.Parse(garbage) = %v, want nil", msg)
	}
}

func TestEncode_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := sipgo.Encode(&sip.BasicRequest{})
	if diff := cmp.Diff(sip.ErrInvalidArgument, err, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("sipgo.Encode(basic request) error mismatch (-want +got):\n%s", diff)
	}
}
