package core

import (
	"github.com/careline/telecall/internal/domain"
)

// Frame is a raw encoded wire message.
type Frame []byte

// SignalConn abstracts a participant's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	TrySend(Frame) error
	Close()
}

// Occupant pairs participant meta with its transport endpoint.
// This is what a room stores and what the relay routes to.
type Occupant struct {
	Participant *domain.Participant
	Conn        SignalConn
}

// RoomRegistry owns room membership. It holds the one invariant the relay
// depends on: a room never has more than two distinct participant identities,
// and membership mutation is atomic per room. The in-process implementation
// lives in internal/relay; a distributed backplane can replace it behind this
// interface when the relay is scaled across processes.
type RoomRegistry interface {
	// Join registers conn under (room, participant). Re-joining with the same
	// identity replaces the prior handle and returns it so the caller can
	// close it. A third distinct identity gets ErrRoomFull.
	Join(room domain.RoomID, p *domain.Participant, conn SignalConn) (replaced SignalConn, err error)
	// Leave removes the registration; the room is deleted when emptied.
	// When conn is non-nil the registration is only removed if it still owns
	// that handle, so a replaced (stale) connection cannot evict its
	// successor. Returns the remaining occupant, if any, so the caller can
	// notify it.
	Leave(room domain.RoomID, id domain.ParticipantID, conn SignalConn) (remaining *Occupant, ok bool)
	Lookup(room domain.RoomID, id domain.ParticipantID) (*Occupant, bool)
	// Others returns the occupants of room excluding id.
	Others(room domain.RoomID, id domain.ParticipantID) []*Occupant
	MemberCount(room domain.RoomID) int
}
