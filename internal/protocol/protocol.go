// Package protocol defines the JSON frames exchanged over the collaboration
// socket. Every frame carries a "type" discriminator; all other fields are
// type-specific. Both the server dispatcher and the Go client speak these.
package protocol

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

type EventType string

// Client -> server.
const (
	EventAuth          EventType = "auth"
	EventSendMessage   EventType = "send_message"
	EventTypingStart   EventType = "typing_start"
	EventTypingStop    EventType = "typing_stop"
	EventUserActivity  EventType = "user_activity"
	EventJoinChannel   EventType = "join_channel"
	EventLeaveChannel  EventType = "leave_channel"
	EventCreateMeeting EventType = "create_meeting"
	EventJoinMeeting   EventType = "join_meeting"
	EventMeetingAction EventType = "meeting_action"
	EventAddReaction   EventType = "add_reaction"
	EventPing          EventType = "ping"
)

// Server -> client.
const (
	EventConnected       EventType = "connected"
	EventRoomState       EventType = "room_state"
	EventUserJoined      EventType = "user_joined"
	EventUserLeft        EventType = "user_left"
	EventTyping          EventType = "typing"
	EventChannelHistory  EventType = "channel_history"
	EventMessage         EventType = "message"
	EventMessageReaction EventType = "message_reaction"
	EventMeetingCreated  EventType = "meeting_created"
	EventMeetingUpdated  EventType = "meeting_updated"
	EventActivity        EventType = "activity"
	EventError           EventType = "error"
	EventPong            EventType = "pong"
)

// Envelope is the minimal decode used to route an inbound frame.
type Envelope struct {
	Type EventType `json:"type"`
}

// --- client -> server payloads ---

type Auth struct {
	Type  EventType `json:"type"`
	Token string    `json:"token" validate:"required"`
}

type SendMessage struct {
	Type        EventType           `json:"type"`
	ChannelID   domain.ChannelID    `json:"channel_id,omitempty"`
	Content     string              `json:"content" validate:"required,max=4096"`
	ReplyToID   domain.MessageID    `json:"reply_to_id,omitempty"`
	Attachments []domain.Attachment `json:"attachments,omitempty" validate:"dive"`
}

type TypingSignal struct {
	Type      EventType        `json:"type"`
	ChannelID domain.ChannelID `json:"channel_id,omitempty"`
}

type UserActivity struct {
	Type      EventType      `json:"type"`
	Kind      string         `json:"kind" validate:"required,max=64"`
	Detail    map[string]any `json:"detail,omitempty"`
	Broadcast bool           `json:"broadcast,omitempty"`
}

type JoinChannel struct {
	Type      EventType        `json:"type"`
	ChannelID domain.ChannelID `json:"channel_id,omitempty"`
	Limit     int              `json:"limit,omitempty" validate:"min=0,max=1000"`
}

type LeaveChannel struct {
	Type      EventType        `json:"type"`
	ChannelID domain.ChannelID `json:"channel_id,omitempty"`
}

type CreateMeeting struct {
	Type         EventType  `json:"type"`
	Title        string     `json:"title" validate:"required,max=200"`
	Description  string     `json:"description,omitempty" validate:"max=2000"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

type JoinMeeting struct {
	Type      EventType        `json:"type"`
	MeetingID domain.MeetingID `json:"meeting_id" validate:"required"`
}

type MeetingActionReq struct {
	Type      EventType            `json:"type"`
	MeetingID domain.MeetingID     `json:"meeting_id" validate:"required"`
	Action    domain.MeetingAction `json:"action" validate:"required,oneof=start pause resume end"`
}

type AddReaction struct {
	Type      EventType        `json:"type"`
	MessageID domain.MessageID `json:"message_id" validate:"required"`
	ChannelID domain.ChannelID `json:"channel_id,omitempty"`
	Emoji     string           `json:"emoji" validate:"required,max=16"`
}

// --- server -> client payloads ---

type Connected struct {
	Type   EventType           `json:"type"`
	RoomID domain.RoomID       `json:"room_id"`
	ConnID domain.ConnectionID `json:"conn_id"`
}

type RoomState struct {
	Type    EventType            `json:"type"`
	RoomID  domain.RoomID        `json:"room_id"`
	Members []domain.Participant `json:"members"`
	Count   int                  `json:"count"`
}

// Presence carries a timestamp generated at the moment of the state change,
// not at send time, so ordering stays server-authoritative.
type Presence struct {
	Type   EventType           `json:"type"`
	ConnID domain.ConnectionID `json:"conn_id"`
	Name   string              `json:"name"`
	At     time.Time           `json:"at"`
}

type Typing struct {
	Type      EventType        `json:"type"`
	UserID    domain.UserID    `json:"user_id"`
	ChannelID domain.ChannelID `json:"channel_id"`
	IsTyping  bool             `json:"is_typing"`
}

type ChannelHistory struct {
	Type      EventType        `json:"type"`
	ChannelID domain.ChannelID `json:"channel_id"`
	Messages  []domain.Message `json:"messages"`
}

type MessageFrame struct {
	Type    EventType      `json:"type"`
	Message domain.Message `json:"message"`
}

type MessageReaction struct {
	Type      EventType           `json:"type"`
	MessageID domain.MessageID    `json:"message_id"`
	ChannelID domain.ChannelID    `json:"channel_id"`
	Emoji     string              `json:"emoji"`
	ConnID    domain.ConnectionID `json:"conn_id"`
}

type MeetingFrame struct {
	Type    EventType      `json:"type"`
	Meeting domain.Meeting `json:"meeting"`
}

type Activity struct {
	Type  EventType            `json:"type"`
	Entry domain.ActivityEntry `json:"entry"`
}

type ErrorFrame struct {
	Type  EventType `json:"type"`
	Error string    `json:"error"`
}
