package relay

import (
	"errors"
	"testing"

	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
)

type nopConn struct{ closed bool }

func (c *nopConn) TrySend(core.Frame) error { return nil }
func (c *nopConn) Close()                   { c.closed = true }

func mustParticipant(t *testing.T, id string, role domain.Role) *domain.Participant {
	t.Helper()
	p, err := domain.NewParticipant(domain.ParticipantID(id), role)
	if err != nil {
		t.Fatalf("NewParticipant(%q): %v", id, err)
	}
	return p
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry()
	room := domain.RoomID("r1")

	if _, err := r.Join(room, mustParticipant(t, "doc", domain.RoleInitiator), &nopConn{}); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := r.Join(room, mustParticipant(t, "pat", domain.RoleResponder), &nopConn{}); err != nil {
		t.Fatalf("second join: %v", err)
	}

	_, err := r.Join(room, mustParticipant(t, "intruder", domain.RoleResponder), &nopConn{})
	if !errors.Is(err, core.ErrRoomFull) {
		t.Fatalf("third join: got %v, want ErrRoomFull", err)
	}
	if got := r.MemberCount(room); got != 2 {
		t.Fatalf("MemberCount = %d, want 2", got)
	}
}

func TestRegistryRejoinReplacesHandle(t *testing.T) {
	r := NewRegistry()
	room := domain.RoomID("r1")
	old := &nopConn{}
	fresh := &nopConn{}

	if _, err := r.Join(room, mustParticipant(t, "doc", domain.RoleInitiator), old); err != nil {
		t.Fatalf("join: %v", err)
	}
	replaced, err := r.Join(room, mustParticipant(t, "doc", domain.RoleInitiator), fresh)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if replaced != core.SignalConn(old) {
		t.Fatalf("rejoin returned %v, want the stale handle", replaced)
	}
	if got := r.MemberCount(room); got != 1 {
		t.Fatalf("MemberCount after rejoin = %d, want 1", got)
	}
	occ, ok := r.Lookup(room, "doc")
	if !ok || occ.Conn != core.SignalConn(fresh) {
		t.Fatalf("Lookup after rejoin: ok=%v conn=%v, want the fresh handle", ok, occ)
	}
}

func TestRegistryLeaveIgnoresStaleHandle(t *testing.T) {
	r := NewRegistry()
	room := domain.RoomID("r1")
	old := &nopConn{}
	fresh := &nopConn{}

	if _, err := r.Join(room, mustParticipant(t, "doc", domain.RoleInitiator), old); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := r.Join(room, mustParticipant(t, "doc", domain.RoleInitiator), fresh); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	// The stale handle's disconnect must not evict the fresh registration.
	if _, ok := r.Leave(room, "doc", old); ok {
		t.Fatal("leave with stale handle reported a remaining occupant")
	}
	if got := r.MemberCount(room); got != 1 {
		t.Fatalf("MemberCount after stale leave = %d, want 1", got)
	}

	if _, _ = r.Leave(room, "doc", fresh); r.MemberCount(room) != 0 {
		t.Fatalf("MemberCount after real leave = %d, want 0", r.MemberCount(room))
	}
}

func TestRegistryDeletesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	room := domain.RoomID("r1")
	doc := &nopConn{}
	pat := &nopConn{}

	if _, err := r.Join(room, mustParticipant(t, "doc", domain.RoleInitiator), doc); err != nil {
		t.Fatalf("join doc: %v", err)
	}
	if _, err := r.Join(room, mustParticipant(t, "pat", domain.RoleResponder), pat); err != nil {
		t.Fatalf("join pat: %v", err)
	}

	remaining, ok := r.Leave(room, "doc", doc)
	if !ok || remaining.Participant.ID != "pat" {
		t.Fatalf("leave doc: remaining=%v ok=%v, want pat", remaining, ok)
	}
	if remaining, ok = r.Leave(room, "pat", pat); ok || remaining != nil {
		t.Fatalf("leave pat: remaining=%v ok=%v, want none", remaining, ok)
	}

	r.mu.RLock()
	_, exists := r.rooms[room]
	r.mu.RUnlock()
	if exists {
		t.Fatal("empty room still present in registry")
	}

	// The identity is free again after the room died.
	if _, err := r.Join(room, mustParticipant(t, "doc", domain.RoleInitiator), &nopConn{}); err != nil {
		t.Fatalf("join recreated room: %v", err)
	}
}

func TestRegistryOthers(t *testing.T) {
	r := NewRegistry()
	room := domain.RoomID("r1")

	if _, err := r.Join(room, mustParticipant(t, "doc", domain.RoleInitiator), &nopConn{}); err != nil {
		t.Fatalf("join doc: %v", err)
	}
	if got := r.Others(room, "doc"); len(got) != 0 {
		t.Fatalf("Others for sole occupant = %v, want empty", got)
	}

	if _, err := r.Join(room, mustParticipant(t, "pat", domain.RoleResponder), &nopConn{}); err != nil {
		t.Fatalf("join pat: %v", err)
	}
	got := r.Others(room, "doc")
	if len(got) != 1 || got[0].Participant.ID != "pat" {
		t.Fatalf("Others = %v, want just pat", got)
	}
}
