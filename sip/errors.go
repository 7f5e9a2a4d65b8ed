package sip

import "github.com/ghettovoice/sipstack/internal/errorutil"

// Common errors.
const (
	ErrInvalidArgument        = errorutil.ErrInvalidArgument
	ErrInvalidMessage   Error = "invalid message"
	ErrMethodNotAllowed Error = "request method not allowed"
)

// Transaction errors.
const (
	ErrTransactionNotFound Error = "transaction not found"
	ErrTransactionTimedOut Error = "transaction timed out"
	ErrTransportFailed     Error = "transport failed"
)

// Error represents a SIP error.
// See [errorutil.Error].
type Error = errorutil.Error

// NewInvalidArgumentError creates a new error with [ErrInvalidArgument] or
// wraps provided error with [ErrInvalidArgument].
func NewInvalidArgumentError(args ...any) error {
	return errorutil.NewInvalidArgumentError(args...) //errtrace:skip
}
