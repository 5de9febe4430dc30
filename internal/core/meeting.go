package core

import "github.com/dkeye/Huddle/internal/domain"

// MeetingRegistry holds a room's meetings. Meetings are never deleted here;
// garbage collection is the room's lifetime. Not safe for concurrent use on
// its own: the owning RoomSession serializes all access.
type MeetingRegistry struct {
	byID  map[domain.MeetingID]*domain.Meeting
	order []domain.MeetingID
}

func NewMeetingRegistry() *MeetingRegistry {
	return &MeetingRegistry{byID: make(map[domain.MeetingID]*domain.Meeting)}
}

func (r *MeetingRegistry) Add(m *domain.Meeting) {
	r.byID[m.ID] = m
	r.order = append(r.order, m.ID)
}

func (r *MeetingRegistry) Get(id domain.MeetingID) (*domain.Meeting, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Join adds conn to the meeting's roster. Allowed in any state, including
// ended. Returns a snapshot of the meeting, or false on an unknown id.
func (r *MeetingRegistry) Join(id domain.MeetingID, conn ConnID) (domain.Meeting, bool) {
	m, ok := r.byID[id]
	if !ok {
		return domain.Meeting{}, false
	}
	m.AddParticipant(conn)
	return *m, true
}

// Apply drives the state machine. An unsupported transition is rejected at
// this layer with no state change; the caller decides how to acknowledge it.
func (r *MeetingRegistry) Apply(id domain.MeetingID, a domain.MeetingAction) (domain.Meeting, bool, bool) {
	m, ok := r.byID[id]
	if !ok {
		return domain.Meeting{}, false, false
	}
	applied := m.Apply(a)
	return *m, applied, true
}

func (r *MeetingRegistry) Len() int { return len(r.byID) }

func (r *MeetingRegistry) List() []domain.Meeting {
	out := make([]domain.Meeting, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}
