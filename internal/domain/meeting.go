package domain

import (
	"time"

	"github.com/google/uuid"
)

type MeetingID string

type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingActive    MeetingStatus = "active"
	MeetingPaused    MeetingStatus = "paused"
	MeetingEnded     MeetingStatus = "ended"
)

type MeetingAction string

const (
	MeetingStart  MeetingAction = "start"
	MeetingPause  MeetingAction = "pause"
	MeetingResume MeetingAction = "resume"
	MeetingEnd    MeetingAction = "end"
)

type Meeting struct {
	ID           MeetingID      `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
	CreatedBy    ConnectionID   `json:"created_by"`
	Participants []ConnectionID `json:"participants"`
	Status       MeetingStatus  `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
}

func NewMeeting(title, description string, scheduledFor *time.Time, by ConnectionID) *Meeting {
	return &Meeting{
		ID:           MeetingID(uuid.NewString()),
		Title:        title,
		Description:  description,
		ScheduledFor: scheduledFor,
		CreatedBy:    by,
		Participants: []ConnectionID{by},
		Status:       MeetingScheduled,
		CreatedAt:    time.Now().UTC(),
	}
}

// Apply drives the lifecycle state machine:
//
//	scheduled --start--> active --pause--> paused --resume--> active
//	active|paused --end--> ended (terminal)
//
// Any other combination is rejected with no state change.
func (m *Meeting) Apply(a MeetingAction) bool {
	now := time.Now().UTC()
	switch {
	case m.Status == MeetingScheduled && a == MeetingStart:
		m.Status = MeetingActive
		m.StartedAt = &now
	case m.Status == MeetingActive && a == MeetingPause:
		m.Status = MeetingPaused
	case m.Status == MeetingPaused && a == MeetingResume:
		m.Status = MeetingActive
	case (m.Status == MeetingActive || m.Status == MeetingPaused) && a == MeetingEnd:
		m.Status = MeetingEnded
		m.EndedAt = &now
	default:
		return false
	}
	return true
}

// AddParticipant is idempotent and allowed in any state, including ended;
// inspecting a past meeting's roster must not revive it.
func (m *Meeting) AddParticipant(conn ConnectionID) {
	for _, p := range m.Participants {
		if p == conn {
			return
		}
	}
	m.Participants = append(m.Participants, conn)
}
