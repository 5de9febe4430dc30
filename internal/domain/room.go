package domain

type RoomID string

// Room is the unit of isolation for a collaboration session.
// All shared state (presence, typing, history, meetings) hangs off it.
type Room struct {
	ID RoomID
}

// DefaultChannel is used when an inbound frame omits channel_id.
const DefaultChannel ChannelID = "general"
