package core

import "github.com/dkeye/Huddle/internal/domain"

const DefaultHistoryCap = 1000

// ChannelHistory is an append-only log of recent messages for one channel,
// capped at a fixed size. Oldest entries are dropped first. Not safe for
// concurrent use on its own: the owning RoomSession serializes all access.
type ChannelHistory struct {
	cap      int
	messages []*domain.Message
}

func NewChannelHistory(capacity int) *ChannelHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &ChannelHistory{cap: capacity}
}

// Append enforces capacity synchronously: readers never observe a history
// that temporarily exceeds it. Over-capacity entries are dropped in a single
// compaction step rather than one-by-one.
func (h *ChannelHistory) Append(m *domain.Message) {
	h.messages = append(h.messages, m)
	if over := len(h.messages) - h.cap; over > 0 {
		h.messages = append(h.messages[:0], h.messages[over:]...)
	}
}

// Recent returns up to limit messages, newest-last. A limit beyond what is
// available returns everything; it does not error and does not pad.
func (h *ChannelHistory) Recent(limit int) []domain.Message {
	if limit <= 0 || limit > len(h.messages) {
		limit = len(h.messages)
	}
	out := make([]domain.Message, 0, limit)
	for _, m := range h.messages[len(h.messages)-limit:] {
		c := *m
		// The reaction map on the stored message stays live; callers marshal
		// the slice after the room lock is released.
		if len(m.Reactions) > 0 {
			c.Reactions = make(map[string][]domain.ConnectionID, len(m.Reactions))
			for emoji, conns := range m.Reactions {
				c.Reactions[emoji] = append([]domain.ConnectionID(nil), conns...)
			}
		}
		out = append(out, c)
	}
	return out
}

// Find looks a message up by id for reaction updates.
func (h *ChannelHistory) Find(id domain.MessageID) (*domain.Message, bool) {
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].ID == id {
			return h.messages[i], true
		}
	}
	return nil, false
}

func (h *ChannelHistory) Len() int { return len(h.messages) }
