// Package transaction implements SIP server transactions as actors.
//
// Every transaction runs inside its own [actor.Cell] placed between the
// network side and the application side of a pipeline. The [Supervisor]
// is the single point of admission: it computes the [sip.TransactionID]
// of every event, creates transactions for new requests, routes retransmissions,
// ACKs and application responses to the live transaction and reaps
// transactions once they reach [StateTerminated].
//
// State machines follow RFC 3261 section 17.2 with the RFC 6026 Accepted state
// for INVITE transactions. Timers are armed on state entry and cancelled
// on state exit through the actor scheduler, so a transaction never holds
// timers of a state it already left.
package transaction

//go:generate go tool errtrace -w .
