// Package client is the consumer side of the collaboration protocol: it
// opens the socket, performs the auth handshake, mirrors presence/typing/
// meeting state locally and owns the reconnection policy.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

const (
	DefaultMaxAttempts = 5
	DefaultTypingTTL   = 3 * time.Second
	DefaultLogCap      = 1000
)

var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// TokenProvider returns a fresh bearer token. Tokens are short-lived, so it
// is called again on every connect attempt, never cached across reconnects.
type TokenProvider func(ctx context.Context) (string, error)

type Options struct {
	URL         string
	Token       TokenProvider
	MaxAttempts int
	Backoff     Backoff
	TypingTTL   time.Duration
	LogCap      int

	// OnFrame fires sequentially on every inbound frame, after the local
	// mirrors were updated.
	OnFrame func(t protocol.EventType, data []byte)
	// OnError surfaces auth failures and the terminal reconnect failure.
	OnError func(err error)
}

type Client struct {
	opts        Options
	maxAttempts int
	typingTTL   time.Duration
	logCap      int

	// writeMu serializes writes to conn; the websocket allows at most one
	// concurrent writer.
	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	ctx          context.Context
	attempts     int
	reconnect    *time.Timer
	closing      bool
	frames       [][]byte
	connID       domain.ConnectionID
	roomID       domain.RoomID
	presence     map[domain.ConnectionID]string
	typingTimers map[typingKey]*time.Timer
	meetings     map[domain.MeetingID]domain.Meeting
}

func New(opts Options) *Client {
	c := &Client{
		opts:         opts,
		maxAttempts:  opts.MaxAttempts,
		typingTTL:    opts.TypingTTL,
		logCap:       opts.LogCap,
		presence:     make(map[domain.ConnectionID]string),
		typingTimers: make(map[typingKey]*time.Timer),
		meetings:     make(map[domain.MeetingID]domain.Meeting),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.typingTTL <= 0 {
		c.typingTTL = DefaultTypingTTL
	}
	if c.logCap <= 0 {
		c.logCap = DefaultLogCap
	}
	return c
}

// Connect is a no-op if the client is already connecting or connected; that
// guard is what makes it safe to call concurrently with an in-flight
// reconnect timer.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.closing = false
	c.ctx = ctx
	c.mu.Unlock()

	// A fresh token per attempt; short-lived tokens must not be reused
	// across reconnects.
	token, err := c.opts.Token(ctx)
	if err != nil {
		c.onClosed(err)
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("dial failed")
		c.onClosed(err)
		return err
	}

	// Auth is the first application frame; we do not wait for an ack, but
	// it must be on the wire before Send can observe the connected state,
	// or a caller's write could interleave with it. Auth rejection arrives
	// later on the error channel, it does not block the connected state.
	c.writeMu.Lock()
	err = conn.WriteJSON(protocol.Auth{Type: protocol.EventAuth, Token: token})
	c.writeMu.Unlock()
	if err != nil {
		_ = conn.Close()
		c.onClosed(err)
		return err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Disconnect closes with a normal-close code, cancels any pending reconnect
// timer and resets the attempt counter. This is the only path that fully
// resets retry state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.attempts = 0
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.clearTypingLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
}

// Send marshals and writes a frame. Deliberately a silent no-op while not
// connected: buffering outbound events across a disconnect would replay
// stale intent after a reconnect.
func (c *Client) Send(v any) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		log.Debug().Str("module", "client").Msg("send dropped: not connected")
		return
	}
	c.writeMu.Lock()
	err := conn.WriteJSON(v)
	c.writeMu.Unlock()
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("send failed")
	}
}

func (c *Client) SendMessage(channel domain.ChannelID, content string) {
	c.Send(protocol.SendMessage{Type: protocol.EventSendMessage, ChannelID: channel, Content: content})
}

func (c *Client) StartTyping(channel domain.ChannelID) {
	c.Send(protocol.TypingSignal{Type: protocol.EventTypingStart, ChannelID: channel})
}

func (c *Client) StopTyping(channel domain.ChannelID) {
	c.Send(protocol.TypingSignal{Type: protocol.EventTypingStop, ChannelID: channel})
}

func (c *Client) JoinChannel(channel domain.ChannelID, limit int) {
	c.Send(protocol.JoinChannel{Type: protocol.EventJoinChannel, ChannelID: channel, Limit: limit})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onClosed(err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad inbound frame")
		return
	}

	c.mu.Lock()
	// Raw history for consumers that want it, bounded like the server's.
	c.frames = append(c.frames, data)
	if over := len(c.frames) - c.logCap; over > 0 {
		c.frames = append(c.frames[:0], c.frames[over:]...)
	}
	c.applyFrame(env.Type, data)
	c.mu.Unlock()

	if env.Type == protocol.EventError && c.opts.OnError != nil {
		var p protocol.ErrorFrame
		if unmarshal(data, &p) {
			c.opts.OnError(errors.New(p.Error))
		}
	}
	if c.opts.OnFrame != nil {
		c.opts.OnFrame(env.Type, data)
	}
}

// onClosed runs the reconnect policy. A normal close (client-initiated or
// server 1000) stops cleanly; anything else retries with backoff until the
// attempt budget runs out, then surfaces a terminal error.
func (c *Client) onClosed(err error) {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.state = StateDisconnected
		c.mu.Unlock()
		log.Error().Err(err).Str("module", "client").Int("attempts", c.maxAttempts).Msg("giving up")
		if c.opts.OnError != nil {
			c.opts.OnError(ErrRetriesExhausted)
		}
		return
	}
	c.attempts++
	c.state = StateReconnecting
	attempt := c.attempts
	delay := c.opts.Backoff.Next(attempt)
	ctx := c.ctx
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		// Disconnect may have raced the timer.
		if c.closing || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.state = StateDisconnected
		c.mu.Unlock()
		_ = c.Connect(ctx)
	})
	c.mu.Unlock()
	log.Info().Err(err).Str("module", "client").Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
}

// --- accessors ---

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ConnID() domain.ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

func (c *Client) RoomID() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) Presence() map[domain.ConnectionID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.ConnectionID]string, len(c.presence))
	for k, v := range c.presence {
		out[k] = v
	}
	return out
}

func (c *Client) IsTyping(user domain.UserID, channel domain.ChannelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.typingTimers[typingKey{User: user, Channel: channel}]
	return ok
}

func (c *Client) Meetings() []domain.Meeting {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Meeting, 0, len(c.meetings))
	for _, m := range c.meetings {
		out = append(out, m)
	}
	return out
}

func (c *Client) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func unmarshal(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad payload")
		return false
	}
	return true
}
