package session

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/careline/telecall/internal/domain"
	"github.com/careline/telecall/internal/protocol"
)

// LocalMedia owns the capture devices for one call. Close must stop every
// track; the controller calls it on every exit path.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	Close()
}

// MediaSource acquires camera/microphone access. Implementations map
// failures onto core.ErrMediaPermissionDenied / core.ErrMediaDeviceNotFound
// so the user sees the actual cause.
type MediaSource interface {
	Acquire(ctx context.Context) (LocalMedia, error)
}

// PeerTransport drives one peer connection. Negotiation is batched: offers
// and answers are returned only after ICE gathering completes, so each
// direction needs exactly one signaling round-trip.
type PeerTransport interface {
	AddTrack(t webrtc.TrackLocal) error
	CreateOffer(ctx context.Context) (protocol.Signal, error)
	AcceptOffer(ctx context.Context, offer protocol.Signal) (protocol.Signal, error)
	ApplyAnswer(answer protocol.Signal) error
	// SetSenderEnabled pauses/resumes an outgoing kind without renegotiation.
	SetSenderEnabled(kind webrtc.RTPCodecType, enabled bool) error
	Close()
}

// PeerFactory builds the transport; notify posts peer lifecycle events onto
// the controller's event channel.
type PeerFactory func(notify func(Event)) (PeerTransport, error)

// RelayLink is the client's connection to the signaling relay.
type RelayLink interface {
	Join(room domain.RoomID, id domain.ParticipantID, role domain.Role) error
	SendSignal(room domain.RoomID, to domain.ParticipantID, sig protocol.Signal) error
	ReturnSignal(room domain.RoomID, to domain.ParticipantID, sig protocol.Signal) error
	Leave(room domain.RoomID, id domain.ParticipantID) error
	Close()
}

// RelayDialer connects to the relay, retrying transient failures with
// backoff before giving up with core.ErrRelayConnectFailed. Inbound relay
// messages are decoded and posted through notify.
type RelayDialer func(ctx context.Context, notify func(Event)) (RelayLink, error)
