package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller is the ingress boundary: it owns the transport resources of
// every connection and routes inbound frames into the room session.
type Controller struct {
	Rooms    *app.RoomRegistry
	Auth     auth.Authorizer
	cfg      *config.Config
	validate *validator.Validate
	limiter  *FrameRateLimiter
}

func NewController(cfg *config.Config, rooms *app.RoomRegistry, authorizer auth.Authorizer) *Controller {
	return &Controller{
		Rooms:    rooms,
		Auth:     authorizer,
		cfg:      cfg,
		validate: validator.New(),
		limiter:  NewFrameRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}
}

// HandleRoom upgrades the connection and attaches it to the room named in
// the URL. The bearer token arrives later in the first auth frame; browser
// clients cannot set custom headers on a websocket.
func (ctl *Controller) HandleRoom(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Param("room"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room id required"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	connID := domain.NewConnectionID()
	conn := newWSConn(ws)
	log.Info().Str("module", "adapters.ws").Str("room", string(roomID)).Str("conn", string(connID)).Str("sid", c.GetString("client_token")).Msg("new connection")

	room := ctl.Rooms.Acquire(roomID)
	room.Attach(domain.Participant{ConnID: connID, DisplayName: "guest"}, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cancel, conn)
	go ctl.readPump(ctx, cancel, roomID, connID, conn)
}

func (ctl *Controller) writePump(ctx context.Context, cancel context.CancelFunc, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// readPump forwards frames to the dispatcher. Cleanup on exit is
// unconditional no matter how the connection went away.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, roomID domain.RoomID, connID domain.ConnectionID, c *wsConn) {
	defer func() {
		cancel()
		c.Close()
		ctl.limiter.Forget(connID)
		if room, ok := ctl.Rooms.Get(roomID); ok {
			room.Detach(connID)
		}
		// Always drop the pin taken by Acquire, even if the room is gone.
		ctl.Rooms.Release(roomID)
		log.Info().Str("module", "adapters.ws").Str("conn", string(connID)).Msg("connection closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Str("module", "adapters.ws").Str("conn", string(connID)).Msg("abnormal close")
				}
				return
			}
			if !ctl.limiter.Allow(connID) {
				log.Warn().Str("module", "adapters.ws").Str("conn", string(connID)).Msg("rate limit exceeded, frame dropped")
				continue
			}
			ctl.handleFrame(roomID, connID, c, data)
		}
	}
}
