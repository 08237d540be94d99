package domain

type ChannelState int

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelConnected
	ChannelReconnecting
)

func (s ChannelState) String() string {
	switch s {
	case ChannelDisconnected:
		return "disconnected"
	case ChannelConnecting:
		return "connecting"
	case ChannelConnected:
		return "connected"
	case ChannelReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ChannelStatus is published on every channel state transition. Err is set
// when the transition was caused by a failure; ErrChannelUnreachable marks
// the connectivity-degraded signal.
type ChannelStatus struct {
	State   ChannelState
	UserID  UserID
	Attempt int
	Err     error
}
