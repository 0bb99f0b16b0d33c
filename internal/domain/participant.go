// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const MaxParticipantIDLen = 64

var (
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
)

type (
	ParticipantID string
	// RoomID is the consultation identifier; the relay treats it as opaque.
	RoomID string
)

// Role decides which side drives negotiation. By convention the clinician
// is the initiator.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Participant represents one side's membership meta for a room.
// No transport or lifecycle logic here.
type Participant struct {
	ID       ParticipantID
	Role     Role
	JoinedAt time.Time
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id ParticipantID, role Role) (*Participant, error) {
	if len(id) == 0 {
		return nil, ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return nil, ErrParticipantIDTooLong
	}
	return &Participant{ID: id, Role: role, JoinedAt: time.Now()}, nil
}
