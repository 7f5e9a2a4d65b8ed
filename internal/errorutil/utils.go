package errorutil

import (
	"errors"
	"net"
)

// IsTimeoutErr returns true if the error is a timeout error.
func IsTimeoutErr(err error) bool {
	var e interface{ Timeout() bool }
	return errors.As(err, &e) && e.Timeout()
}

// IsClosedErr returns true if the error reports use of a closed network connection.
func IsClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
