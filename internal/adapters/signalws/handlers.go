package signalws

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
	"github.com/careline/telecall/internal/protocol"
)

// session is the per-connection handler state. It only becomes addressable
// once a join-room has been accepted.
type session struct {
	ctl  *Controller
	conn *wsConn

	joined        bool
	roomID        domain.RoomID
	participantID domain.ParticipantID
}

func (s *session) handleMessage(data []byte) {
	typ, err := protocol.TypeOf(data)
	if err != nil {
		s.sendError(protocol.CodeBadPayload, "invalid message")
		return
	}

	switch typ {
	case protocol.TypeJoinRoom:
		s.handleJoin(data)
	case protocol.TypeSendSignal:
		s.handleSendSignal(data)
	case protocol.TypeReturnSignal:
		s.handleReturnSignal(data)
	case protocol.TypeLeaveRoom:
		s.handleLeave()
	default:
		log.Warn().Str("module", "signalws").Str("type", typ).Msg("unknown message type")
		s.sendError(protocol.CodeUnknownType, "unknown message type: "+typ)
	}
}

func (s *session) handleJoin(data []byte) {
	var p protocol.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(protocol.CodeBadPayload, "bad join-room payload")
		return
	}
	role := p.Role
	if role == "" {
		role = domain.RoleResponder
	}
	participant, err := domain.NewParticipant(p.ParticipantID, role)
	if err != nil {
		s.sendError(protocol.CodeBadPayload, err.Error())
		return
	}
	if p.RoomID == "" {
		s.sendError(protocol.CodeBadPayload, "missing roomId")
		return
	}

	others, err := s.ctl.Relay.Join(p.RoomID, participant, s.conn)
	if err != nil {
		if errors.Is(err, core.ErrRoomFull) {
			s.sendError(protocol.CodeRoomFull, "room already has two participants")
		} else {
			s.sendError(protocol.CodeBadPayload, err.Error())
		}
		return
	}
	s.joined = true
	s.roomID = p.RoomID
	s.participantID = p.ParticipantID

	s.sendJSON(protocol.RoomJoined{
		Type:   protocol.TypeRoomJoined,
		RoomID: p.RoomID,
		Others: others,
	})
}

func (s *session) handleSendSignal(data []byte) {
	var p protocol.SendSignal
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(protocol.CodeBadPayload, "bad send-signal payload")
		return
	}
	if !s.joined {
		s.sendError(protocol.CodeNotInRoom, "join a room first")
		return
	}
	// The sender identity comes from the connection, not the payload.
	if err := s.ctl.Relay.RelaySignal(s.roomID, s.participantID, p.To, p.Signal); err != nil {
		s.sendError(protocol.CodeBadSignal, err.Error())
	}
}

func (s *session) handleReturnSignal(data []byte) {
	var p protocol.ReturnSignal
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(protocol.CodeBadPayload, "bad return-signal payload")
		return
	}
	if !s.joined {
		s.sendError(protocol.CodeNotInRoom, "join a room first")
		return
	}
	if err := s.ctl.Relay.ReturnSignal(s.roomID, s.participantID, p.To, p.Signal); err != nil {
		s.sendError(protocol.CodeBadSignal, err.Error())
	}
}

func (s *session) handleLeave() {
	if !s.joined {
		return
	}
	s.ctl.Relay.Leave(s.roomID, s.participantID, s.conn)
	s.joined = false
}

// onDisconnect runs when the read loop exits for any reason. An explicit
// leave-room already cleared membership, making this a no-op.
func (s *session) onDisconnect() {
	if !s.joined {
		return
	}
	s.ctl.Relay.Leave(s.roomID, s.participantID, s.conn)
	s.joined = false
}

func (s *session) sendJSON(v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signalws").Msg("encode")
		return
	}
	_ = s.conn.TrySend(frame)
}

func (s *session) sendError(code, msg string) {
	s.sendJSON(protocol.ErrorMessage{
		Type:  protocol.TypeError,
		Code:  code,
		Error: msg,
	})
}
