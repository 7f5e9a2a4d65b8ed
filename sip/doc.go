// Package sip holds the SIP data model consumed by the server transaction layer:
// the [Message], [Request] and [Response] views of parsed messages, the
// [TransactionID] matching key of RFC 3261 section 17.2.3, the connection a
// message arrived on and the [TimingConfig] of RFC 3261 timers.
//
// Wire parsing is not part of this package. Any parser can feed the layer by
// implementing [Request] and [Response]; see package codec/sipgo for an adapter
// over github.com/emiago/sipgo.
package sip

//go:generate go tool errtrace -w .
