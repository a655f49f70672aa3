package chains

// ConnectionState is the externally visible state of a link to a remote chain.
type ConnectionState int

const (
	NotConnected ConnectionState = iota
	Connected
	KilledBySchainOwner
	KilledByOperator
	Killed
)

func (s ConnectionState) String() string {
	switch s {
	case NotConnected:
		return "not_connected"
	case Connected:
		return "connected"
	case KilledBySchainOwner:
		return "killed_by_schain_owner"
	case KilledByOperator:
		return "killed_by_operator"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// KillVotes records the two independent halves of a kill.
type KillVotes struct {
	BySchainOwner bool
	ByOperator    bool
}

// Killed is true once both parties voted, regardless of order.
func (v KillVotes) Killed() bool {
	return v.BySchainOwner && v.ByOperator
}

// DeriveState folds the connection flag and kill votes into a ConnectionState.
// A killed link stays Killed even after the channel itself was removed.
func DeriveState(connected bool, votes KillVotes) ConnectionState {
	switch {
	case votes.Killed():
		return Killed
	case !connected:
		return NotConnected
	case votes.BySchainOwner:
		return KilledBySchainOwner
	case votes.ByOperator:
		return KilledByOperator
	default:
		return Connected
	}
}

// AllowsTraffic reports whether messages may still flow. A single kill vote does not stop traffic.
func (s ConnectionState) AllowsTraffic() bool {
	return s == Connected || s == KilledBySchainOwner || s == KilledByOperator
}
