package transaction

import (
	"github.com/ghettovoice/sipstack/internal/errorutil"
	"github.com/ghettovoice/sipstack/sip"
)

const (
	ErrInvalidArgument     = sip.ErrInvalidArgument
	ErrMethodNotAllowed    = sip.ErrMethodNotAllowed
	ErrTransactionNotFound = sip.ErrTransactionNotFound
	ErrTransactionTimedOut = sip.ErrTransactionTimedOut
	ErrTransportFailed     = sip.ErrTransportFailed

	ErrSupervisorClosed Error = "supervisor closed"
	ErrUnexpectedEvent  Error = "unexpected event"
)

// Error is a transaction package error.
// See [errorutil.Error].
type Error = errorutil.Error
