package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"pollpulse/internal/engine"
	"pollpulse/internal/services"
	"pollpulse/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	tallies  *engine.TallyAggregator
	presence *engine.PresenceTracker
	feeds    *engine.FeedSynchronizer
	log      *logger.Logger
}

func NewHandler(hub *Hub, tallies *engine.TallyAggregator, presence *engine.PresenceTracker, feeds *engine.FeedSynchronizer, log *logger.Logger) *Handler {
	return &Handler{hub: hub, tallies: tallies, presence: presence, feeds: feeds, log: log}
}

// Connect upgrades the request and serves the observer's control protocol
// until the socket drops. All engine handles opened over this connection are
// released before Connect returns.
func (h *Handler) Connect(c *gin.Context) {
	voterID := ""
	if voter, ok := services.VoterFromContext(c.Request.Context()); ok {
		voterID = voter.ID
	} else if device := strings.TrimSpace(c.Query("device_token")); device != "" {
		// Browsers cannot set headers on websocket upgrades; accept the
		// persisted device token as a query parameter.
		voterID = "anon:" + device
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, voterID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)

	sess := newSession(client, h.tallies, h.presence, h.feeds, h.log)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		sess.handle(ctx, raw)
	}

	sess.teardown(context.Background())
	h.hub.Unregister(client)
}
