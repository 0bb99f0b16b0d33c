package session

import (
	"github.com/careline/telecall/internal/domain"
	"github.com/careline/telecall/internal/protocol"
)

// EventKind enumerates everything that can move the state machine. Relay
// messages, peer transport callbacks, toggles and closes all funnel through
// one channel consumed by a single loop, so there is no callback
// interleaving to reason about.
type EventKind int

const (
	evRoomJoined EventKind = iota
	evUserConnected
	evUserJoined
	evReturnedSignal
	evUserDisconnected
	evRelayError
	evRelayDown
	evPeerConnected
	evPeerFailed
	evRemoteTrack
	evToggleAudio
	evToggleVideo
	evClose
)

type Event struct {
	Kind   EventKind
	From   domain.ParticipantID
	Others []protocol.ParticipantInfo
	Signal protocol.Signal
	Err    error
}
