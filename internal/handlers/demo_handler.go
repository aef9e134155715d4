package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tullo/livechat/internal/demo"
	"github.com/tullo/livechat/internal/middleware"
	"github.com/tullo/livechat/internal/models"
)

// DemoHandler triggers demo actions. They run in the background on ctx,
// which lives as long as the server, and report through the live stream.
type DemoHandler struct {
	ctx     context.Context
	actions *demo.Actions
	log     *slog.Logger
}

func NewDemoHandler(ctx context.Context, actions *demo.Actions, log *slog.Logger) *DemoHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DemoHandler{ctx: ctx, actions: actions, log: log}
}

func (h *DemoHandler) Guarded(c *gin.Context) {
	req, ok := bindDemo(c)
	if !ok {
		return
	}
	id := middleware.SessionID(c)

	go h.actions.Guarded(id, req.Original)

	c.JSON(http.StatusAccepted, gin.H{"action": models.EventGuarded})
}

func (h *DemoHandler) Cancellable(c *gin.Context) {
	req, ok := bindDemo(c)
	if !ok {
		return
	}
	id := middleware.SessionID(c)

	go func() {
		if !h.actions.Cancellable(h.ctx, id, req.Original) {
			h.log.Debug("cancellable action superseded", "session", id)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"action": models.EventCancellable})
}

func bindDemo(c *gin.Context) (models.DemoRequest, bool) {
	var req models.DemoRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}
