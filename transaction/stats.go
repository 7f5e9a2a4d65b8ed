package transaction

import "sync/atomic"

// Stats is a snapshot of supervisor counters.
type Stats struct {
	// InviteServerTransactions is a number of active invite server transactions.
	InviteServerTransactions uint64 `json:"invite_server_transactions"`
	// NonInviteServerTransactions is a number of active non-invite server transactions.
	NonInviteServerTransactions uint64 `json:"non_invite_server_transactions"`
	// InviteServerTransactionsTotal is a total number of created invite server transactions.
	InviteServerTransactionsTotal uint64 `json:"invite_server_transactions_total"`
	// NonInviteServerTransactionsTotal is a total number of created non-invite server transactions.
	NonInviteServerTransactionsTotal uint64 `json:"non_invite_server_transactions_total"`
	// OrphanedResponses is a number of responses dropped because no transaction matched.
	OrphanedResponses uint64 `json:"orphaned_responses"`
	// PassedAcks is a number of ACK requests passed upstream outside of any transaction.
	PassedAcks uint64 `json:"passed_acks"`
}

type statsRecorder struct {
	invite,
	nonInvite,
	inviteTotal,
	nonInviteTotal,
	orphanedRes,
	passedAcks atomic.Uint64
}

func (r *statsRecorder) created(typ Type) {
	if typ == TypeServerInvite {
		r.invite.Add(1)
		r.inviteTotal.Add(1)
		return
	}
	r.nonInvite.Add(1)
	r.nonInviteTotal.Add(1)
}

func (r *statsRecorder) terminated(typ Type) {
	if typ == TypeServerInvite {
		r.invite.Add(^uint64(0))
		return
	}
	r.nonInvite.Add(^uint64(0))
}

func (r *statsRecorder) snapshot() Stats {
	return Stats{
		InviteServerTransactions:         r.invite.Load(),
		NonInviteServerTransactions:      r.nonInvite.Load(),
		InviteServerTransactionsTotal:    r.inviteTotal.Load(),
		NonInviteServerTransactionsTotal: r.nonInviteTotal.Load(),
		OrphanedResponses:                r.orphanedRes.Load(),
		PassedAcks:                       r.passedAcks.Load(),
	}
}
