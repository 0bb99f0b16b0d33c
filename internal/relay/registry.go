package relay

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
)

// roomEntry holds one consultation's membership. Join/leave for the same
// room serialize on its own mutex, so two participants can never both
// observe an empty room; unrelated rooms never contend.
type roomEntry struct {
	mu        sync.Mutex
	deleted   bool
	occupants map[domain.ParticipantID]*core.Occupant
}

// Registry is the in-process RoomRegistry. Rooms are created implicitly on
// first join and removed when the last participant leaves; a relay restart
// loses them all, which is fine because reconnect is the recovery path.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*roomEntry)}
}

func (r *Registry) getOrCreate(room domain.RoomID) *roomEntry {
	r.mu.RLock()
	e, ok := r.rooms[room]
	r.mu.RUnlock()
	if ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.rooms[room]; ok {
		return e
	}
	e = &roomEntry{occupants: make(map[domain.ParticipantID]*core.Occupant)}
	r.rooms[room] = e
	return e
}

func (r *Registry) Join(room domain.RoomID, p *domain.Participant, conn core.SignalConn) (core.SignalConn, error) {
	for {
		e := r.getOrCreate(room)
		e.mu.Lock()
		if e.deleted {
			// Lost a race with the last leave; the map entry is gone.
			e.mu.Unlock()
			continue
		}
		if prev, ok := e.occupants[p.ID]; ok {
			// Reconnect: same identity replaces its stale handle, membership
			// size does not change.
			replaced := prev.Conn
			e.occupants[p.ID] = &core.Occupant{Participant: p, Conn: conn}
			e.mu.Unlock()
			log.Info().Str("module", "relay.registry").Str("room", string(room)).Str("participant", string(p.ID)).Msg("rejoin, replaced stale handle")
			return replaced, nil
		}
		if len(e.occupants) >= 2 {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: room %s", core.ErrRoomFull, room)
		}
		e.occupants[p.ID] = &core.Occupant{Participant: p, Conn: conn}
		e.mu.Unlock()
		log.Info().Str("module", "relay.registry").Str("room", string(room)).Str("participant", string(p.ID)).Str("role", string(p.Role)).Msg("participant joined")
		return nil, nil
	}
}

func (r *Registry) Leave(room domain.RoomID, id domain.ParticipantID, conn core.SignalConn) (*core.Occupant, bool) {
	r.mu.RLock()
	e, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	occ, ok := e.occupants[id]
	if !ok || (conn != nil && occ.Conn != conn) {
		e.mu.Unlock()
		return nil, false
	}
	delete(e.occupants, id)
	var remaining *core.Occupant
	for _, occ := range e.occupants {
		remaining = occ
	}
	empty := len(e.occupants) == 0
	if empty {
		e.deleted = true
	}
	e.mu.Unlock()

	if empty {
		r.mu.Lock()
		if cur, ok := r.rooms[room]; ok && cur == e {
			delete(r.rooms, room)
		}
		r.mu.Unlock()
		log.Info().Str("module", "relay.registry").Str("room", string(room)).Msg("room deleted (empty)")
	}
	log.Info().Str("module", "relay.registry").Str("room", string(room)).Str("participant", string(id)).Msg("participant left")
	return remaining, remaining != nil
}

func (r *Registry) Lookup(room domain.RoomID, id domain.ParticipantID) (*core.Occupant, bool) {
	r.mu.RLock()
	e, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	occ, ok := e.occupants[id]
	return occ, ok
}

func (r *Registry) Others(room domain.RoomID, id domain.ParticipantID) []*core.Occupant {
	r.mu.RLock()
	e, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*core.Occupant, 0, len(e.occupants))
	for pid, occ := range e.occupants {
		if pid != id {
			out = append(out, occ)
		}
	}
	return out
}

func (r *Registry) MemberCount(room domain.RoomID) int {
	r.mu.RLock()
	e, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.occupants)
}
