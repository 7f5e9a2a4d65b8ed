package types

import "github.com/ghettovoice/sipstack/internal/util"

const (
	TransportProtoUDP  TransportProto = "UDP"
	TransportProtoTCP  TransportProto = "TCP"
	TransportProtoTLS  TransportProto = "TLS"
	TransportProtoSCTP TransportProto = "SCTP"
	TransportProtoWS   TransportProto = "WS"
	TransportProtoWSS  TransportProto = "WSS"
)

// TransportProto is a transport protocol name as it appears in the Via header.
type TransportProto string

func (p TransportProto) ToUpper() TransportProto { return util.UCase(p) }

func (p TransportProto) IsValid() bool { return isToken(p) }

func (p TransportProto) Equal(val any) bool { return eqFoldAny(p, val) }

// Reliable reports whether the transport guarantees delivery.
// Unknown protocols are treated as unreliable, so retransmission timers stay armed.
func (p TransportProto) Reliable() bool {
	switch p.ToUpper() {
	case TransportProtoTCP, TransportProtoTLS, TransportProtoSCTP, TransportProtoWS, TransportProtoWSS:
		return true
	default:
		return false
	}
}
