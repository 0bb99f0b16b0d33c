package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
	"github.com/careline/telecall/internal/protocol"
)

type recordConn struct {
	frames []core.Frame
	closed bool
}

func (c *recordConn) TrySend(f core.Frame) error {
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordConn) Close() { c.closed = true }

func (c *recordConn) types(t *testing.T) []string {
	t.Helper()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		typ, err := protocol.TypeOf(f)
		if err != nil {
			t.Fatalf("TypeOf(%s): %v", f, err)
		}
		out = append(out, typ)
	}
	return out
}

func join(t *testing.T, s *Service, room domain.RoomID, id string, role domain.Role, conn core.SignalConn) []protocol.ParticipantInfo {
	t.Helper()
	infos, err := s.Join(room, mustParticipant(t, id, role), conn)
	if err != nil {
		t.Fatalf("Join(%s): %v", id, err)
	}
	return infos
}

func TestJoinNotifiesExistingOccupant(t *testing.T) {
	s := NewService(NewRegistry())
	room := domain.RoomID("r1")
	doc := &recordConn{}
	pat := &recordConn{}

	infos := join(t, s, room, "doc", domain.RoleInitiator, doc)
	if len(infos) != 0 {
		t.Fatalf("first joiner snapshot = %v, want empty", infos)
	}

	infos = join(t, s, room, "pat", domain.RoleResponder, pat)
	if len(infos) != 1 || infos[0].ID != "doc" {
		t.Fatalf("second joiner snapshot = %v, want doc", infos)
	}

	if got := doc.types(t); len(got) != 1 || got[0] != protocol.TypeUserConnected {
		t.Fatalf("doc received %v, want one user-connected", got)
	}
	if len(pat.frames) != 0 {
		t.Fatalf("pat received %d frames, want none", len(pat.frames))
	}
}

func TestRejoinClosesStaleHandleWithoutReannounce(t *testing.T) {
	s := NewService(NewRegistry())
	room := domain.RoomID("r1")
	doc := &recordConn{}
	stale := &recordConn{}
	fresh := &recordConn{}

	join(t, s, room, "doc", domain.RoleInitiator, doc)
	join(t, s, room, "pat", domain.RoleResponder, stale)
	doc.frames = nil

	infos := join(t, s, room, "pat", domain.RoleResponder, fresh)
	if len(infos) != 1 || infos[0].ID != "doc" {
		t.Fatalf("rejoin snapshot = %v, want doc", infos)
	}
	if !stale.closed {
		t.Fatal("stale handle was not closed")
	}
	if len(doc.frames) != 0 {
		t.Fatalf("doc was re-notified on rejoin: %v", doc.types(t))
	}
}

func TestRelaySignalReachesOnlyTarget(t *testing.T) {
	s := NewService(NewRegistry())
	room := domain.RoomID("r1")
	doc := &recordConn{}
	pat := &recordConn{}
	join(t, s, room, "doc", domain.RoleInitiator, doc)
	join(t, s, room, "pat", domain.RoleResponder, pat)
	doc.frames = nil

	offer := protocol.Signal{Kind: protocol.KindOffer, SDP: "v=0 offer"}
	if err := s.RelaySignal(room, "doc", "pat", offer); err != nil {
		t.Fatalf("RelaySignal: %v", err)
	}

	if got := pat.types(t); len(got) != 1 || got[0] != protocol.TypeUserJoined {
		t.Fatalf("pat received %v, want one user-joined", got)
	}
	var fwd protocol.UserJoined
	if err := json.Unmarshal(pat.frames[0], &fwd); err != nil {
		t.Fatalf("decode forwarded frame: %v", err)
	}
	if fwd.From != "doc" || fwd.Signal.SDP != offer.SDP {
		t.Fatalf("forwarded = %+v, want doc's offer verbatim", fwd)
	}
	if len(doc.frames) != 0 {
		t.Fatalf("sender got its own signal back: %v", doc.types(t))
	}
}

func TestReturnSignalDeliversAnswer(t *testing.T) {
	s := NewService(NewRegistry())
	room := domain.RoomID("r1")
	doc := &recordConn{}
	pat := &recordConn{}
	join(t, s, room, "doc", domain.RoleInitiator, doc)
	join(t, s, room, "pat", domain.RoleResponder, pat)
	doc.frames = nil

	answer := protocol.Signal{Kind: protocol.KindAnswer, SDP: "v=0 answer"}
	if err := s.ReturnSignal(room, "pat", "doc", answer); err != nil {
		t.Fatalf("ReturnSignal: %v", err)
	}
	if got := doc.types(t); len(got) != 1 || got[0] != protocol.TypeReceivingReturnedSignal {
		t.Fatalf("doc received %v, want one receiving-returned-signal", got)
	}
}

func TestMalformedSignalRejectedNotForwarded(t *testing.T) {
	s := NewService(NewRegistry())
	room := domain.RoomID("r1")
	doc := &recordConn{}
	pat := &recordConn{}
	join(t, s, room, "doc", domain.RoleInitiator, doc)
	join(t, s, room, "pat", domain.RoleResponder, pat)

	err := s.RelaySignal(room, "doc", "pat", protocol.Signal{Kind: "bogus"})
	if !errors.Is(err, core.ErrSignalMalformed) {
		t.Fatalf("RelaySignal bogus kind: got %v, want ErrSignalMalformed", err)
	}
	err = s.RelaySignal(room, "doc", "pat", protocol.Signal{Kind: protocol.KindOffer})
	if !errors.Is(err, core.ErrSignalMalformed) {
		t.Fatalf("RelaySignal empty sdp: got %v, want ErrSignalMalformed", err)
	}
	if len(pat.frames) != 0 {
		t.Fatalf("malformed signal was forwarded: %v", pat.types(t))
	}
}

func TestSignalToMissingTargetIsDropped(t *testing.T) {
	s := NewService(NewRegistry())
	room := domain.RoomID("r1")
	doc := &recordConn{}
	join(t, s, room, "doc", domain.RoleInitiator, doc)

	offer := protocol.Signal{Kind: protocol.KindOffer, SDP: "v=0"}
	if err := s.RelaySignal(room, "doc", "ghost", offer); err != nil {
		t.Fatalf("RelaySignal to absent target: %v", err)
	}
	if len(doc.frames) != 0 {
		t.Fatalf("sender received %v, want nothing", doc.types(t))
	}
}

func TestLeaveNotifiesRemainingOnce(t *testing.T) {
	s := NewService(NewRegistry())
	room := domain.RoomID("r1")
	doc := &recordConn{}
	pat := &recordConn{}
	join(t, s, room, "doc", domain.RoleInitiator, doc)
	join(t, s, room, "pat", domain.RoleResponder, pat)
	doc.frames = nil

	// Explicit leave followed by the transport disconnect for the same
	// handle must produce a single departure notification.
	s.Leave(room, "pat", pat)
	s.Leave(room, "pat", pat)

	got := doc.types(t)
	if len(got) != 1 || got[0] != protocol.TypeUserDisconnected {
		t.Fatalf("doc received %v, want exactly one user-disconnected", got)
	}
}
