package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tullo/livechat/internal/middleware"
	"github.com/tullo/livechat/internal/models"
	"github.com/tullo/livechat/internal/session"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// The stream is one-way; peers only send control frames
	maxMessageSize = 512
)

// Handler serves a session's live stream over websocket and SSE
type Handler struct {
	registry *session.Registry
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHandler creates a stream handler. With no allowed origins the
// upgrader falls back to gorilla's same-host check.
func NewHandler(registry *session.Registry, allowedOrigins []string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		log:      log,
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, pattern := range allowedOrigins {
				if matchOrigin(pattern, origin) {
					return true
				}
			}
			return false
		}
	}
	return h
}

// HandleWebSocket upgrades the request and streams the caller's session events
func (h *Handler) HandleWebSocket(c *gin.Context) {
	id := middleware.SessionID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	sub := h.registry.Subscribe(id)
	defer sub.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.readPump(conn, cancel)
	go pingLoop(ctx, conn)

	err = pump(ctx, sub, id, h.log, func(evt models.Event) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(evt)
	})
	if err != nil && ctx.Err() == nil {
		h.log.Debug("websocket stream ended", "session", id, "error", err)
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// readPump drains control frames and cancels the stream once the peer goes away
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read failed", "error", err)
			}
			return
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// HandleSSE streams the caller's session events as server-sent events
func (h *Handler) HandleSSE(c *gin.Context) {
	id := middleware.SessionID(c)

	sub := h.registry.Subscribe(id)
	defer sub.Release()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	err := pump(c.Request.Context(), sub, id, h.log, func(evt models.Event) error {
		c.SSEvent(evt.Name, evt.Data)
		c.Writer.Flush()
		return nil
	})
	if err != nil && c.Request.Context().Err() == nil {
		h.log.Debug("event stream ended", "session", id, "error", err)
	}
}

// matchOrigin supports exact matches or wildcard patterns like *.example.com
func matchOrigin(pattern, origin string) bool {
	if pattern == origin {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		originHost := origin
		if u, err := url.Parse(origin); err == nil {
			originHost = u.Hostname()
		}
		suffix := strings.TrimPrefix(pattern, "*")
		return strings.HasSuffix(originHost, suffix)
	}
	return false
}
