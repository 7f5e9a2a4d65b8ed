package transaction

import (
	"time"

	"github.com/ghettovoice/sipstack/sip"
)

// DefaultStaleTimeout is used when [Config.StaleTimeout] is zero.
const DefaultStaleTimeout = 5 * time.Minute

// Config is the read-only configuration of server transactions.
type Config struct {
	// Timings holds SIP timer values.
	// Zero value uses RFC 3261 defaults.
	Timings sip.TimingConfig `json:"timings"`
	// Send100TryingImmediately makes INVITE transactions send 100 Trying
	// as soon as they enter Proceeding instead of after [sip.TimingConfig.Time100].
	Send100TryingImmediately bool `json:"send_100_trying_immediately,omitempty"`
	// StaleTimeout is the maximum time a transaction may wait for a final response
	// from the application. Expired transactions report [ErrTransactionTimedOut]
	// upstream and terminate.
	// If 0, [DefaultStaleTimeout] is used. If negative, the guard is disabled.
	StaleTimeout time.Duration `json:"stale_timeout,omitempty"`
}

func (c Config) staleTimeout() time.Duration {
	if c.StaleTimeout == 0 {
		return DefaultStaleTimeout
	}
	return c.StaleTimeout
}
