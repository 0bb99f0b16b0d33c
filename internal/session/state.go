package session

// State is the controller's lifecycle position. Transitions happen only on
// the run loop, so observers always see a consistent ordering.
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateMediaReady
	StateMediaDenied
	StateAwaitingPeer
	StateNegotiating
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring_media"
	case StateMediaReady:
		return "media_ready"
	case StateMediaDenied:
		return "media_denied"
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
