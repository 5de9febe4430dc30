package client

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

type typingKey struct {
	User    domain.UserID
	Channel domain.ChannelID
}

// applyFrame updates the local mirrors from one inbound frame.
// Called with c.mu held.
func (c *Client) applyFrame(t protocol.EventType, data []byte) {
	switch t {
	case protocol.EventConnected:
		var p protocol.Connected
		if unmarshal(data, &p) {
			c.connID = p.ConnID
			c.roomID = p.RoomID
		}
	case protocol.EventRoomState:
		var p protocol.RoomState
		if unmarshal(data, &p) {
			c.presence = make(map[domain.ConnectionID]string, len(p.Members))
			for _, m := range p.Members {
				c.presence[m.ConnID] = m.DisplayName
			}
		}
	case protocol.EventUserJoined:
		var p protocol.Presence
		if unmarshal(data, &p) {
			c.presence[p.ConnID] = p.Name
		}
	case protocol.EventUserLeft:
		var p protocol.Presence
		if unmarshal(data, &p) {
			delete(c.presence, p.ConnID)
		}
	case protocol.EventTyping:
		var p protocol.Typing
		if unmarshal(data, &p) {
			c.applyTyping(p)
		}
	case protocol.EventMeetingCreated, protocol.EventMeetingUpdated:
		var p protocol.MeetingFrame
		if unmarshal(data, &p) {
			c.meetings[p.Meeting.ID] = p.Meeting
		}
	}
}

// applyTyping keeps a local auto-clear timer per typing user, independent of
// the server's own expiry: network loss can swallow an explicit stop, and
// the indicator must never stay stuck. Called with c.mu held.
func (c *Client) applyTyping(p protocol.Typing) {
	k := typingKey{User: p.UserID, Channel: p.ChannelID}
	if t, ok := c.typingTimers[k]; ok {
		t.Stop()
		delete(c.typingTimers, k)
	}
	if !p.IsTyping {
		return
	}
	c.typingTimers[k] = time.AfterFunc(c.typingTTL, func() {
		c.mu.Lock()
		if t, ok := c.typingTimers[k]; ok {
			t.Stop()
			delete(c.typingTimers, k)
		}
		c.mu.Unlock()
	})
}

// clearTypingLocked cancels every auto-clear timer. A timer firing after
// teardown must not resurrect stale state. Called with c.mu held.
func (c *Client) clearTypingLocked() {
	for k, t := range c.typingTimers {
		t.Stop()
		delete(c.typingTimers, k)
	}
}
