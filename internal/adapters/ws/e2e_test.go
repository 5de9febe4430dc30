package ws_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/adapters/ws"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/client"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func testServer(t *testing.T, authorizer auth.Authorizer) (*httptest.Server, *app.RoomRegistry) {
	t.Helper()

	cfg := &config.Config{
		Mode:         "release",
		ReadLimit:    32768,
		PingPeriod:   50 * time.Second,
		TypingTTL:    100 * time.Millisecond,
		HistoryCap:   100,
		ActivityCap:  50,
		HistorySlice: 50,
		RateLimit:    1000,
		RateWindow:   time.Second,
	}
	caps := core.Caps{
		HistoryCap:   cfg.HistoryCap,
		ActivityCap:  cfg.ActivityCap,
		HistorySlice: cfg.HistorySlice,
		TypingTTL:    cfg.TypingTTL,
	}
	rooms := app.NewRoomRegistry(caps, core.KickSlowPolicy{})
	ctl := ws.NewController(cfg, rooms, authorizer)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r.GET("/api/ws/rooms/:room", func(c *gin.Context) {
		ctl.HandleRoom(ctx, c)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, rooms
}

func roomURL(srv *httptest.Server, room string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/rooms/" + room
}

func newClient(t *testing.T, srv *httptest.Server, room, token string) *client.Client {
	t.Helper()
	c := client.New(client.Options{
		URL:   roomURL(srv, room),
		Token: func(context.Context) (string, error) { return token, nil },
	})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	require.Eventually(t, func() bool {
		return c.ConnID() != ""
	}, 2*time.Second, 10*time.Millisecond, "connected frame never arrived")
	return c
}

func framesOf(c *client.Client, want protocol.EventType) int {
	n := 0
	for _, f := range c.Frames() {
		if strings.Contains(string(f), `"type":"`+string(want)+`"`) {
			n++
		}
	}
	return n
}

func TestEndToEndMessageFlow(t *testing.T) {
	t.Parallel()

	authorizer := auth.StaticAuthorizer{
		"tok-a": {UserID: "user-a", DisplayName: "Ada"},
		"tok-b": {UserID: "user-b", DisplayName: "Bob"},
	}
	srv, _ := testServer(t, authorizer)

	a := newClient(t, srv, "standup", "tok-a")
	b := newClient(t, srv, "standup", "tok-b")

	// Both sides converge on the same presence view.
	require.Eventually(t, func() bool {
		return len(a.Presence()) == 2 && len(b.Presence()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	a.SendMessage("general", "hello room")

	// Broadcast reaches everyone, sender included.
	require.Eventually(t, func() bool {
		return framesOf(a, protocol.EventMessage) == 1 && framesOf(b, protocol.EventMessage) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndTypingIndicator(t *testing.T) {
	t.Parallel()

	authorizer := auth.StaticAuthorizer{
		"tok-a": {UserID: "user-a", DisplayName: "Ada"},
		"tok-b": {UserID: "user-b", DisplayName: "Bob"},
	}
	srv, _ := testServer(t, authorizer)

	a := newClient(t, srv, "standup", "tok-a")
	b := newClient(t, srv, "standup", "tok-b")

	require.Eventually(t, func() bool {
		return len(a.Presence()) == 2 && len(b.Presence()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	a.StartTyping("general")

	require.Eventually(t, func() bool {
		return b.IsTyping("user-a", "general")
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, a.IsTyping("user-a", "general"), "typing user gets no self echo")

	// Server-side expiry clears the indicator without an explicit stop.
	require.Eventually(t, func() bool {
		return !b.IsTyping("user-a", "general")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndAuthFailure(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, auth.StaticAuthorizer{})

	errs := make(chan error, 1)
	c := client.New(client.Options{
		URL:     roomURL(srv, "standup"),
		Token:   func(context.Context) (string, error) { return "bad-token", nil },
		OnError: func(err error) { errs <- err },
	})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Disconnect)

	select {
	case err := <-errs:
		assert.EqualError(t, err, "unauthorized")
	case <-time.After(2 * time.Second):
		t.Fatal("auth error frame never surfaced")
	}
	// The socket stays open; the caller decides whether to hang up.
	assert.True(t, c.IsConnected())
}

func TestEndToEndChannelHistoryOnJoin(t *testing.T) {
	t.Parallel()

	authorizer := auth.StaticAuthorizer{
		"tok-a": {UserID: "user-a", DisplayName: "Ada"},
		"tok-b": {UserID: "user-b", DisplayName: "Bob"},
	}
	srv, _ := testServer(t, authorizer)

	a := newClient(t, srv, "standup", "tok-a")
	a.SendMessage("dev", "first")
	a.SendMessage("dev", "second")

	require.Eventually(t, func() bool {
		return framesOf(a, protocol.EventMessage) == 2
	}, 2*time.Second, 10*time.Millisecond)

	b := newClient(t, srv, "standup", "tok-b")
	b.JoinChannel("dev", 0)

	require.Eventually(t, func() bool {
		return framesOf(b, protocol.EventChannelHistory) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, framesOf(a, protocol.EventChannelHistory), "history reply is point-to-point")
}

func TestEndToEndRoomEvictedWhenEmpty(t *testing.T) {
	t.Parallel()

	authorizer := auth.StaticAuthorizer{"tok-a": {UserID: "user-a", DisplayName: "Ada"}}
	srv, rooms := testServer(t, authorizer)

	c := newClient(t, srv, "ephemeral", "tok-a")
	_, ok := rooms.Get(domain.RoomID("ephemeral"))
	require.True(t, ok)

	c.Disconnect()

	require.Eventually(t, func() bool {
		_, ok := rooms.Get(domain.RoomID("ephemeral"))
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "idle room should be evicted after the last leave")
}
