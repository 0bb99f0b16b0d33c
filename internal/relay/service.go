// Package relay routes negotiation messages between the two participants of
// a consultation room. It never inspects a Signal beyond its addressing
// envelope and keeps no state outside the RoomRegistry.
package relay

import (
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
	"github.com/careline/telecall/internal/protocol"
)

type Service struct {
	Rooms core.RoomRegistry
}

func NewService(rooms core.RoomRegistry) *Service {
	return &Service{Rooms: rooms}
}

// Join registers conn in the room and notifies the existing occupant (if
// any) that p connected, so it can start negotiation. The returned snapshot
// goes back to the joiner in the room-joined ack; a reconnect replaces the
// stale handle without re-announcing presence.
func (s *Service) Join(room domain.RoomID, p *domain.Participant, conn core.SignalConn) ([]protocol.ParticipantInfo, error) {
	replaced, err := s.Rooms.Join(room, p, conn)
	if err != nil {
		return nil, err
	}
	if replaced != nil {
		replaced.Close()
	}

	others := s.Rooms.Others(room, p.ID)
	infos := make([]protocol.ParticipantInfo, 0, len(others))
	for _, occ := range others {
		infos = append(infos, protocol.ParticipantInfo{ID: occ.Participant.ID, Role: occ.Participant.Role})
		if replaced == nil {
			s.notify(occ, protocol.UserConnected{
				Type:          protocol.TypeUserConnected,
				ParticipantID: p.ID,
			})
		}
	}
	return infos, nil
}

// RelaySignal forwards an initiator's signal to the target as user-joined.
// A malformed signal is returned to the caller and never forwarded; a
// missing target is logged and dropped, the sender's negotiation timeout
// handles the rest.
func (s *Service) RelaySignal(room domain.RoomID, from, to domain.ParticipantID, sig protocol.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	s.forward(room, to, protocol.UserJoined{
		Type:   protocol.TypeUserJoined,
		Signal: sig,
		From:   from,
	})
	return nil
}

// ReturnSignal forwards a responder's answer back as
// receiving-returned-signal.
func (s *Service) ReturnSignal(room domain.RoomID, from, to domain.ParticipantID, sig protocol.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	s.forward(room, to, protocol.ReceivingReturnedSignal{
		Type:   protocol.TypeReceivingReturnedSignal,
		Signal: sig,
		From:   from,
	})
	return nil
}

// Leave removes the participant and tells the remaining occupant, exactly
// once, that its counterpart is gone. Used for both explicit leave-room and
// transport-level disconnect; conn scopes the removal to the handle that is
// actually going away.
func (s *Service) Leave(room domain.RoomID, id domain.ParticipantID, conn core.SignalConn) {
	remaining, ok := s.Rooms.Leave(room, id, conn)
	if !ok {
		return
	}
	s.notify(remaining, protocol.UserDisconnected{
		Type:          protocol.TypeUserDisconnected,
		ParticipantID: id,
	})
}

func (s *Service) forward(room domain.RoomID, to domain.ParticipantID, v any) {
	occ, ok := s.Rooms.Lookup(room, to)
	if !ok {
		log.Warn().Str("module", "relay").Str("room", string(room)).Str("to", string(to)).Msg("forward: target not connected, dropping")
		return
	}
	s.notify(occ, v)
}

func (s *Service) notify(occ *core.Occupant, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("encode")
		return
	}
	if err := occ.Conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("participant", string(occ.Participant.ID)).Msg("send failed")
	}
}
