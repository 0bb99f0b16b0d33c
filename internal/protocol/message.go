// Package protocol defines the wire messages exchanged over the signaling
// WebSocket. Every frame is a JSON object with a "type" discriminator;
// payload structs are closed so both relay and client can handle every case
// exhaustively and reject the rest.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
)

// Envelope types, client to relay.
const (
	TypeJoinRoom     = "join-room"
	TypeSendSignal   = "send-signal"
	TypeReturnSignal = "return-signal"
	TypeLeaveRoom    = "leave-room"
)

// Envelope types, relay to client.
const (
	TypeRoomJoined              = "room-joined"
	TypeUserConnected           = "user-connected"
	TypeUserJoined              = "user-joined"
	TypeReceivingReturnedSignal = "receiving-returned-signal"
	TypeUserDisconnected        = "user-disconnected"
	TypeError                   = "error"
)

// Error codes carried by TypeError frames.
const (
	CodeBadPayload  = "bad_payload"
	CodeBadSignal   = "bad_signal"
	CodeRoomFull    = "room_full"
	CodeNotInRoom   = "not_in_room"
	CodeUnknownType = "unknown_type"
)

// Signal kinds.
const (
	KindOffer        = "offer"
	KindAnswer       = "answer"
	KindICECandidate = "ice-candidate"
)

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Signal is the negotiation payload the relay forwards verbatim. Candidates
// are batched into the offer/answer SDP, so KindICECandidate only appears
// when a future client opts into trickle negotiation.
type Signal struct {
	Kind      string        `json:"kind"`
	SDP       string        `json:"sdp,omitempty"`
	Candidate *ICECandidate `json:"candidate,omitempty"`
}

// Validate rejects anything outside the closed kind set, or a known kind
// missing its payload.
func (s *Signal) Validate() error {
	switch s.Kind {
	case KindOffer, KindAnswer:
		if s.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", core.ErrSignalMalformed, s.Kind)
		}
	case KindICECandidate:
		if s.Candidate == nil || s.Candidate.Candidate == "" {
			return fmt.Errorf("%w: ice-candidate without candidate", core.ErrSignalMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", core.ErrSignalMalformed, s.Kind)
	}
	return nil
}

type JoinRoom struct {
	Type          string               `json:"type"`
	RoomID        domain.RoomID        `json:"roomId"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Role          domain.Role          `json:"role,omitempty"`
}

type SendSignal struct {
	Type   string               `json:"type"`
	RoomID domain.RoomID        `json:"roomId"`
	To     domain.ParticipantID `json:"toParticipantId"`
	From   domain.ParticipantID `json:"fromParticipantId"`
	Signal Signal               `json:"signal"`
}

type ReturnSignal struct {
	Type   string               `json:"type"`
	RoomID domain.RoomID        `json:"roomId"`
	To     domain.ParticipantID `json:"toParticipantId"`
	Signal Signal               `json:"signal"`
}

type LeaveRoom struct {
	Type          string               `json:"type"`
	RoomID        domain.RoomID        `json:"roomId"`
	ParticipantID domain.ParticipantID `json:"participantId"`
}

type ParticipantInfo struct {
	ID   domain.ParticipantID `json:"id"`
	Role domain.Role          `json:"role"`
}

// RoomJoined acks a join and snapshots the room so a late joiner learns about
// an occupant that arrived first.
type RoomJoined struct {
	Type   string            `json:"type"`
	RoomID domain.RoomID     `json:"roomId"`
	Others []ParticipantInfo `json:"others"`
}

type UserConnected struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
}

type UserJoined struct {
	Type   string               `json:"type"`
	Signal Signal               `json:"signal"`
	From   domain.ParticipantID `json:"fromParticipantId"`
}

type ReceivingReturnedSignal struct {
	Type   string               `json:"type"`
	Signal Signal               `json:"signal"`
	From   domain.ParticipantID `json:"fromParticipantId"`
}

type UserDisconnected struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// TypeOf sniffs the envelope discriminator without decoding the payload.
func TypeOf(data []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrSignalMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", core.ErrSignalMalformed)
	}
	return env.Type, nil
}

// Encode marshals a wire message. Marshalling these closed structs cannot
// fail in practice; errors are still propagated for the caller to log.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
