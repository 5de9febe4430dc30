package core

import "github.com/dkeye/Huddle/internal/domain"

const DefaultActivityCap = 100

// ActivityLog is a capped log of presentation-only telemetry events.
// Same single-step compaction rule as ChannelHistory.
type ActivityLog struct {
	cap     int
	entries []domain.ActivityEntry
}

func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityCap
	}
	return &ActivityLog{cap: capacity}
}

func (l *ActivityLog) Append(e domain.ActivityEntry) {
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.cap; over > 0 {
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}
}

func (l *ActivityLog) Len() int { return len(l.entries) }

func (l *ActivityLog) Entries() []domain.ActivityEntry {
	out := make([]domain.ActivityEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
