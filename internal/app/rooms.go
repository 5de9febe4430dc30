package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	ConnCount int           `json:"conn_count"`
	Meetings  int           `json:"meetings"`
}

// RoomRegistry is the only path to a room; there is no ambient global map.
// Rooms are created on first use and evicted once idle.
type RoomRegistry struct {
	caps   core.Caps
	policy core.Policy

	mu    sync.RWMutex
	rooms map[domain.RoomID]*core.RoomSession
	pins  map[domain.RoomID]int
}

func NewRoomRegistry(caps core.Caps, policy core.Policy) *RoomRegistry {
	return &RoomRegistry{
		caps:   caps,
		policy: policy,
		rooms:  make(map[domain.RoomID]*core.RoomSession),
		pins:   make(map[domain.RoomID]int),
	}
}

// Acquire hands the room out for a new connection and pins it until the
// matching Release. The pin covers the window between handout and Attach,
// when the room's own connection count cannot vouch for it yet, so a
// concurrent teardown of the last member cannot evict it from under the
// new connection.
func (r *RoomRegistry) Acquire(id domain.RoomID) *core.RoomSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		room = core.NewRoomSession(id, r.caps, r.policy)
		r.rooms[id] = room
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	}
	r.pins[id]++
	return room
}

func (r *RoomRegistry) Get(id domain.RoomID) (*core.RoomSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Release drops one pin and evicts the room once nothing holds it: no
// pins outstanding and no connections attached, both checked under the
// registry lock.
func (r *RoomRegistry) Release(id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pins[id] > 0 {
		r.pins[id]--
	}
	room, ok := r.rooms[id]
	if !ok || r.pins[id] > 0 || room.ConnCount() > 0 {
		return
	}
	room.Close()
	delete(r.rooms, id)
	delete(r.pins, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("idle room evicted")
}

func (r *RoomRegistry) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, RoomInfo{ID: id, ConnCount: room.ConnCount(), Meetings: len(room.Meetings())})
	}
	return out
}
