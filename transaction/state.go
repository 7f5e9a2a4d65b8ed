package transaction

import "log/slog"

// State is a server transaction state.
type State int32

const (
	StateInit State = iota
	StateTrying
	StateProceeding
	StateAccepted
	StateCompleted
	StateConfirmed
	StateTerminated
)

var stateNames = [...]string{
	StateInit:       "init",
	StateTrying:     "trying",
	StateProceeding: "proceeding",
	StateAccepted:   "accepted",
	StateCompleted:  "completed",
	StateConfirmed:  "confirmed",
	StateTerminated: "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) IsTerminal() bool { return s == StateTerminated }

func (s State) LogValue() slog.Value { return slog.StringValue(s.String()) }

// Type is a server transaction type.
type Type string

const (
	TypeServerInvite    Type = "server_invite"
	TypeServerNonInvite Type = "server_non_invite"
)
