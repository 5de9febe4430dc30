package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func staticToken(tok string) TokenProvider {
	return func(context.Context) (string, error) { return tok, nil }
}

func mustFrame(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestConnectIsNoopWhileConnectedOrConnecting(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "ws://invalid.invalid", Token: staticToken("t")})

	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()
	require.NoError(t, c.Connect(context.Background()), "no-op, never dials")
	assert.Equal(t, StateConnected, c.State())

	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateConnecting, c.State())
}

func TestSendDroppedWhileDisconnected(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "ws://invalid.invalid", Token: staticToken("t")})
	// Deliberately fire-and-forget: nothing queued, nothing panics.
	c.SendMessage("general", "hello")
	c.StartTyping("general")
	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, c.Frames())
}

func TestPresenceMirror(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "ws://unused", Token: staticToken("t")})

	c.handleFrame(mustFrame(t, protocol.RoomState{
		Type:   protocol.EventRoomState,
		RoomID: "r1",
		Members: []domain.Participant{
			{ConnID: "a", DisplayName: "ada"},
			{ConnID: "b", DisplayName: "bob"},
		},
		Count: 2,
	}))
	c.handleFrame(mustFrame(t, protocol.Presence{Type: protocol.EventUserJoined, ConnID: "c", Name: "cleo"}))
	c.handleFrame(mustFrame(t, protocol.Presence{Type: protocol.EventUserLeft, ConnID: "a", Name: "ada"}))

	p := c.Presence()
	assert.Len(t, p, 2)
	assert.Equal(t, "bob", p["b"])
	assert.Equal(t, "cleo", p["c"])
}

func TestTypingMirrorAutoClears(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "ws://unused", Token: staticToken("t"), TypingTTL: 60 * time.Millisecond})

	c.handleFrame(mustFrame(t, protocol.Typing{Type: protocol.EventTyping, UserID: "u1", ChannelID: "general", IsTyping: true}))
	assert.True(t, c.IsTyping("u1", "general"))

	// The local auto-clear fires without an explicit stop; a lost
	// typing_stop must not leave the indicator stuck.
	require.Eventually(t, func() bool {
		return !c.IsTyping("u1", "general")
	}, 500*time.Millisecond, 10*time.Millisecond)
}

func TestTypingMirrorExplicitStopCancelsTimer(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "ws://unused", Token: staticToken("t"), TypingTTL: time.Minute})

	c.handleFrame(mustFrame(t, protocol.Typing{Type: protocol.EventTyping, UserID: "u1", ChannelID: "general", IsTyping: true}))
	require.True(t, c.IsTyping("u1", "general"))

	c.handleFrame(mustFrame(t, protocol.Typing{Type: protocol.EventTyping, UserID: "u1", ChannelID: "general", IsTyping: false}))
	assert.False(t, c.IsTyping("u1", "general"))
}

func TestMeetingMirror(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "ws://unused", Token: staticToken("t")})

	c.handleFrame(mustFrame(t, protocol.MeetingFrame{
		Type:    protocol.EventMeetingCreated,
		Meeting: domain.Meeting{ID: "m1", Title: "standup", Status: domain.MeetingScheduled},
	}))
	c.handleFrame(mustFrame(t, protocol.MeetingFrame{
		Type:    protocol.EventMeetingUpdated,
		Meeting: domain.Meeting{ID: "m1", Title: "standup", Status: domain.MeetingActive},
	}))

	ms := c.Meetings()
	require.Len(t, ms, 1)
	assert.Equal(t, domain.MeetingActive, ms[0].Status)
}

func TestFrameLogBounded(t *testing.T) {
	t.Parallel()

	c := New(Options{URL: "ws://unused", Token: staticToken("t"), LogCap: 3})
	for i := 0; i < 10; i++ {
		c.handleFrame(mustFrame(t, protocol.Envelope{Type: protocol.EventPong}))
	}
	assert.Len(t, c.Frames(), 3)
}

// wsTestServer upgrades every request and hands the connection to fn.
func wsTestServer(t *testing.T, fn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestAuthFrameSentFirstWithFreshToken(t *testing.T) {
	t.Parallel()

	var tokens atomic.Int32
	gotAuth := make(chan protocol.Auth, 1)
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var a protocol.Auth
		if err := conn.ReadJSON(&a); err == nil {
			gotAuth <- a
		}
	})

	c := New(Options{
		URL: wsURL(srv),
		Token: func(context.Context) (string, error) {
			tokens.Add(1)
			return "tok-1", nil
		},
	})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	select {
	case a := <-gotAuth:
		assert.Equal(t, protocol.EventAuth, a.Type)
		assert.Equal(t, "tok-1", a.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received auth frame")
	}
	assert.True(t, c.IsConnected(), "connected flips once auth is written, not on an ack")
	assert.Equal(t, int32(1), tokens.Load())
}

func TestAuthPrecedesConcurrentSends(t *testing.T) {
	t.Parallel()

	frames := make(chan protocol.EventType, 8)
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			frames <- env.Type
		}
	})

	c := New(Options{URL: wsURL(srv), Token: staticToken("t")})

	// A writer racing Connect the way an application goroutine would: it
	// fires the moment the connected guard opens. The auth frame must
	// still hit the wire first, and the two writes must never interleave.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			if c.IsConnected() {
				c.SendMessage("general", "x")
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent sender never ran")
	}

	read := func() protocol.EventType {
		select {
		case ft := <-frames:
			return ft
		case <-time.After(2 * time.Second):
			t.Fatal("frame never arrived")
			return ""
		}
	}
	assert.Equal(t, protocol.EventAuth, read(), "auth is the first frame on the wire")
	assert.Equal(t, protocol.EventSendMessage, read())
}

func TestReconnectBudgetExhaustionIsTerminal(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		// Abrupt close, no 1000 frame: the client must retry.
		conn.Close()
	})

	terminal := make(chan error, 4)
	c := New(Options{
		URL:         wsURL(srv),
		Token:       staticToken("t"),
		MaxAttempts: 2,
		Backoff:     Backoff{Base: 10 * time.Millisecond, Max: 20 * time.Millisecond},
		OnError: func(err error) {
			terminal <- err
		},
	})
	// The server drops the socket at once, so even the first write may
	// already report the failure; the retry path owns it either way.
	_ = c.Connect(context.Background())

	select {
	case err := <-terminal:
		assert.ErrorIs(t, err, ErrRetriesExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("terminal error never surfaced")
	}
	assert.Equal(t, StateDisconnected, c.State())
	// Initial dial plus the two budgeted retries.
	assert.Equal(t, int32(3), dials.Load())
}

func TestServerNormalCloseDoesNotReconnect(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		// Drain the auth frame first so the client's write cannot race
		// the close.
		_, _, _ = conn.ReadMessage()
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), deadline)
		conn.Close()
	})

	c := New(Options{
		URL:     wsURL(srv),
		Token:   staticToken("t"),
		Backoff: Backoff{Base: 10 * time.Millisecond, Max: 20 * time.Millisecond},
	})
	require.NoError(t, c.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return c.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), dials.Load(), "a 1000 close must not trigger the retry path")
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	var dials atomic.Int32
	srv := wsTestServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		conn.Close()
	})

	c := New(Options{
		URL:         wsURL(srv),
		Token:       staticToken("t"),
		MaxAttempts: 10,
		Backoff:     Backoff{Base: 200 * time.Millisecond, Max: 200 * time.Millisecond},
	})
	_ = c.Connect(context.Background())

	require.Eventually(t, func() bool {
		return c.State() == StateReconnecting
	}, 2*time.Second, 5*time.Millisecond)

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())

	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	assert.Zero(t, attempts, "disconnect is the only full reset of retry state")

	before := dials.Load()
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, before, dials.Load(), "cancelled timer must not redial")
}
