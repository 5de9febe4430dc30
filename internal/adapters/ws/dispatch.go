package ws

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

// handleFrame routes one inbound frame. Malformed frames and unknown types
// are logged and dropped; a panic while handling one connection's event
// must never reach any other connection's session.
func (ctl *Controller) handleFrame(roomID domain.RoomID, connID domain.ConnectionID, c *wsConn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "adapters.ws").Str("conn", string(connID)).Any("panic", r).Msg("frame handler panicked")
		}
	}()

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("bad json frame")
		return
	}

	room, ok := ctl.Rooms.Get(roomID)
	if !ok {
		return
	}

	switch env.Type {
	case protocol.EventAuth:
		ctl.handleAuth(room, connID, c, data)
	case protocol.EventSendMessage:
		var p protocol.SendMessage
		if !ctl.decode(connID, data, &p) {
			return
		}
		if err := room.SendMessage(connID, p); err != nil {
			log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("message rejected")
		}
	case protocol.EventTypingStart:
		var p protocol.TypingSignal
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.TypingStart(connID, p.ChannelID)
	case protocol.EventTypingStop:
		var p protocol.TypingSignal
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.TypingStop(connID, p.ChannelID)
	case protocol.EventUserActivity:
		var p protocol.UserActivity
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.Activity(connID, p)
	case protocol.EventJoinChannel:
		var p protocol.JoinChannel
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.JoinChannel(connID, p.ChannelID, p.Limit)
	case protocol.EventLeaveChannel:
		var p protocol.LeaveChannel
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.LeaveChannel(connID, p.ChannelID)
	case protocol.EventCreateMeeting:
		var p protocol.CreateMeeting
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.CreateMeeting(connID, p)
	case protocol.EventJoinMeeting:
		var p protocol.JoinMeeting
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.JoinMeeting(connID, p.MeetingID)
	case protocol.EventMeetingAction:
		var p protocol.MeetingActionReq
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.MeetingAction(connID, p.MeetingID, p.Action)
	case protocol.EventAddReaction:
		var p protocol.AddReaction
		if !ctl.decode(connID, data, &p) {
			return
		}
		room.AddReaction(connID, p)
	case protocol.EventPing:
		ctl.sendJSON(c, protocol.Envelope{Type: protocol.EventPong})
	default:
		log.Warn().Str("module", "adapters.ws").Str("type", string(env.Type)).Msg("unknown event type")
	}
}

// handleAuth resolves the bearer token. Failure goes back to the offending
// connection only; the socket stays open and the caller decides what to do.
func (ctl *Controller) handleAuth(room *core.RoomSession, connID domain.ConnectionID, c *wsConn, data []byte) {
	var p protocol.Auth
	if !ctl.decode(connID, data, &p) {
		return
	}
	ident, err := ctl.Auth.Authorize(p.Token)
	if err != nil {
		log.Warn().Str("module", "adapters.ws").Str("conn", string(connID)).Msg("auth failed")
		ctl.sendJSON(c, protocol.ErrorFrame{Type: protocol.EventError, Error: "unauthorized"})
		return
	}
	room.Authenticate(connID, ident.UserID, ident.DisplayName)
	log.Info().Str("module", "adapters.ws").Str("conn", string(connID)).Str("user", string(ident.UserID)).Msg("authenticated")
}

// decode unmarshals and validates a typed payload. Shape problems are a
// protocol error: logged, dropped, nothing sent back.
func (ctl *Controller) decode(connID domain.ConnectionID, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("bad payload")
		return false
	}
	if err := ctl.validate.Struct(v); err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("invalid payload")
		return false
	}
	return true
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(core.Frame(b))
}
