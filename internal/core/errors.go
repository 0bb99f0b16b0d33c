package core

import "errors"

// Call failure taxonomy. Every error surfaced to a user maps to exactly one
// of these so the UI can render a specific, actionable message instead of a
// generic failure.
var (
	ErrMediaPermissionDenied  = errors.New("media permission denied")
	ErrMediaDeviceNotFound    = errors.New("media device not found")
	ErrRelayConnectFailed     = errors.New("relay connect failed")
	ErrRelayDisconnected      = errors.New("relay disconnected unexpectedly")
	ErrSignalMalformed        = errors.New("malformed signal message")
	ErrPeerNegotiationFailed  = errors.New("peer negotiation failed")
	ErrPeerNegotiationTimeout = errors.New("peer negotiation timed out")
)

// ErrRoomFull guards the room invariant: at most two distinct participant
// identities per consultation.
var ErrRoomFull = errors.New("room already has two participants")

// UserMessage translates a taxonomy error into the message shown to the
// participant. Unknown errors get a cause-less fallback on purpose: anything
// user-actionable must be wrapped in one of the sentinels above.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrMediaPermissionDenied):
		return "Camera/microphone access was denied. Allow access and restart the consultation."
	case errors.Is(err, ErrMediaDeviceNotFound):
		return "No camera or microphone was found. Connect a device and restart the consultation."
	case errors.Is(err, ErrRelayConnectFailed):
		return "Could not reach the consultation server. Check your connection and try again."
	case errors.Is(err, ErrRelayDisconnected):
		return "Connection to the consultation server was lost."
	case errors.Is(err, ErrPeerNegotiationTimeout):
		return "The other participant did not respond in time. Restart the consultation to retry."
	case errors.Is(err, ErrPeerNegotiationFailed):
		return "Could not establish the call. Restart the consultation to retry."
	case errors.Is(err, ErrRoomFull):
		return "This consultation already has two participants."
	default:
		return "The consultation ended because of an unexpected error."
	}
}
