package core

import "github.com/dkeye/Huddle/internal/domain"

type ConnID = domain.ConnectionID

// PresenceSet tracks which connection ids are joined to a room.
// Not safe for concurrent use on its own: the owning RoomSession
// serializes all access.
type PresenceSet struct {
	members map[ConnID]struct{}
}

func NewPresenceSet() *PresenceSet {
	return &PresenceSet{members: make(map[ConnID]struct{})}
}

// Join is idempotent. Returns false if the id was already present.
func (p *PresenceSet) Join(id ConnID) bool {
	if _, ok := p.members[id]; ok {
		return false
	}
	p.members[id] = struct{}{}
	return true
}

// Leave on an unknown id is a no-op, not an error; disconnect races
// must never crash the room. Returns false if the id was not present.
func (p *PresenceSet) Leave(id ConnID) bool {
	if _, ok := p.members[id]; !ok {
		return false
	}
	delete(p.members, id)
	return true
}

func (p *PresenceSet) Contains(id ConnID) bool {
	_, ok := p.members[id]
	return ok
}

func (p *PresenceSet) Len() int { return len(p.members) }

func (p *PresenceSet) List() []ConnID {
	out := make([]ConnID, 0, len(p.members))
	for id := range p.members {
		out = append(out, id)
	}
	return out
}
