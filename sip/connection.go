package sip

import (
	"log/slog"
	"net/netip"
)

// Connection identifies the transport flow a message arrived on.
// Responses produced by a transaction are sent back over the same connection.
type Connection struct {
	// ID is an opaque identifier assigned by the transport layer.
	ID         string
	Transport  TransportProto
	LocalAddr  netip.AddrPort
	RemoteAddr netip.AddrPort
}

// Reliable reports whether the connection transport guarantees delivery.
func (c Connection) Reliable() bool { return c.Transport.Reliable() }

// IsZero reports whether the connection is unset.
func (c Connection) IsZero() bool { return c == Connection{} }

// LogValue implements [slog.LogValuer].
func (c Connection) LogValue() slog.Value {
	if c.IsZero() {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.Any("transport", c.Transport),
		slog.String("local_addr", c.LocalAddr.String()),
		slog.String("remote_addr", c.RemoteAddr.String()),
	)
}
