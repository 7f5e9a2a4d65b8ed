package sip

import (
	"fmt"
	"log/slog"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipstack/internal/util"
)

// TransactionID is a key used to identify a server transaction.
//
// The key implements the matching rules defined in RFC 3261 section 17.2.3.
// Branch, SentBy and Method are used for RFC 3261 transactions.
// SentBy, Method, CallID, FromTag and CSeqNum are used for RFC 2543 transactions.
// TransactionID is comparable and can be used as a map key.
type TransactionID struct {
	// Branch parameter of the topmost Via header field.
	// RFC 3261 transactions.
	Branch string `json:"branch,omitempty"`
	// Lower-cased host and port of the topmost Via header field.
	SentBy string `json:"sent_by"`
	// Upper-cased CSeq method. ACK is folded to INVITE.
	Method RequestMethod `json:"method"`

	// Call-ID of the request that created the transaction.
	// RFC 2543 transactions.
	CallID string `json:"call_id,omitempty"`
	// Tag parameter of the From header field.
	// RFC 2543 transactions.
	FromTag string `json:"from_tag,omitempty"`
	// CSeq number of the request that created the transaction.
	// RFC 2543 transactions.
	CSeqNum uint32 `json:"cseq_num,omitempty"`
}

// TransactionIDFromMessage computes the transaction key of a request or response.
//
// ACK is keyed as INVITE, so an ACK to a non-2xx final response matches
// the INVITE transaction it acknowledges.
func TransactionIDFromMessage(msg Message) (TransactionID, error) {
	var id TransactionID
	if msg == nil {
		return id, errtrace.Wrap(NewInvalidArgumentError("invalid message"))
	}

	via, ok := msg.TopVia()
	if !ok || via.SentBy == "" {
		return id, errtrace.Wrap(NewInvalidArgumentError("missing Via header"))
	}

	seq, mtd := msg.CSeq()
	if mtd == "" {
		mtd = msg.Method()
	}
	if mtd == "" {
		return id, errtrace.Wrap(NewInvalidArgumentError("missing method"))
	}
	mtd = mtd.ToUpper()
	if mtd == RequestMethodAck {
		mtd = RequestMethodInvite
	}

	id.SentBy = util.LCase(via.SentBy)
	id.Method = mtd

	if IsRFC3261Branch(via.Branch) {
		id.Branch = via.Branch
		return id, nil
	}

	id.CallID = msg.CallID()
	id.FromTag = msg.FromTag()
	id.CSeqNum = seq
	if id.CallID == "" || seq == 0 {
		return TransactionID{}, errtrace.Wrap(NewInvalidArgumentError("missing Call-ID or CSeq"))
	}
	return id, nil
}

// IsRFC3261 reports whether the key was built from an RFC 3261 branch.
func (id TransactionID) IsRFC3261() bool { return IsRFC3261Branch(id.Branch) }

// IsValid checks whether the key is valid.
func (id TransactionID) IsValid() bool {
	if id.IsRFC3261() {
		return id.SentBy != "" && id.Method != ""
	}
	return id.SentBy != "" && id.Method != "" && id.CallID != "" && id.CSeqNum > 0
}

func (id TransactionID) String() string {
	if id.IsRFC3261() {
		return fmt.Sprintf("%s/%s/%s", id.Branch, id.SentBy, id.Method)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%d", id.SentBy, id.Method, id.CallID, id.FromTag, id.CSeqNum)
}

// LogValue implements [slog.LogValuer].
func (id TransactionID) LogValue() slog.Value {
	if id.IsRFC3261() {
		return slog.GroupValue(
			slog.String("branch", id.Branch),
			slog.String("sent-by", id.SentBy),
			slog.Any("method", id.Method),
		)
	}
	return slog.GroupValue(
		slog.String("sent-by", id.SentBy),
		slog.Any("method", id.Method),
		slog.String("call-id", id.CallID),
		slog.String("from-tag", id.FromTag),
		slog.Any("cseq-num", id.CSeqNum),
	)
}
