package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/chat"
	"github.com/tullo/livechat/internal/middleware"
	"github.com/tullo/livechat/internal/models"
	"github.com/tullo/livechat/internal/session"
)

// ChatService is the part of chat.Service the handlers use
type ChatService interface {
	CreateRoom(ctx context.Context, cmd chat.CreateRoom) (*models.Room, error)
	JoinRoom(ctx context.Context, cmd chat.JoinRoom) error
	ListMessages(ctx context.Context, q chat.ListMessages) ([]models.Message, error)
	PostMessage(ctx context.Context, cmd chat.PostMessage) (*models.Message, error)
	ModerateMessage(ctx context.Context, cmd chat.ModerateMessage) (*models.Message, error)
	ListModerationQueue(ctx context.Context, limit int) ([]models.ModerationItem, error)
}

type ChatHandler struct {
	service  ChatService
	registry *session.Registry
	log      *slog.Logger
}

func NewChatHandler(service ChatService, registry *session.Registry, log *slog.Logger) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{service: service, registry: registry, log: log}
}

// CreateRoom creates a room owned by the caller
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	name, err := models.ParseRoomName(req.Name)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), chat.CreateRoom{
		Name:      name,
		CreatedBy: middleware.UserID(c),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

// JoinRoom adds the caller to a room
func (h *ChatHandler) JoinRoom(c *gin.Context) {
	roomID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.JoinRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.JoinRoom(c.Request.Context(), chat.JoinRoom{
		RoomID: roomID,
		UserID: middleware.UserID(c),
		Role:   role,
	}); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "role": role})
}

// GetMessages returns a room's history, newest first
func (h *ChatHandler) GetMessages(c *gin.Context) {
	roomID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.GetMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.service.ListMessages(c.Request.Context(), chat.ListMessages{
		RoomID: roomID,
		UserID: middleware.UserID(c),
		Limit:  req.Limit,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// SendMessage posts a message and pushes it to the caller's live stream
func (h *ChatHandler) SendMessage(c *gin.Context) {
	roomID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.PostMessage(c.Request.Context(), chat.PostMessage{
		RoomID:   roomID,
		UserID:   middleware.UserID(c),
		Body:     req.Body,
		ClientID: req.ClientID,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.push(middleware.SessionID(c), msg)
	c.JSON(http.StatusCreated, msg)
}

// GetModerationQueue lists pending messages, oldest first
func (h *ChatHandler) GetModerationQueue(c *gin.Context) {
	var req models.GetMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Limit == 0 {
		req.Limit = chat.DefaultMessageLimit
	}

	items, err := h.service.ListModerationQueue(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// Moderate applies a reviewer decision to a message
func (h *ChatHandler) Moderate(c *gin.Context) {
	messageID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.ModerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.ModerateMessage(c.Request.Context(), chat.ModerateMessage{
		MessageID:  messageID,
		ReviewerID: middleware.UserID(c),
		Decision:   models.Decision(req.Decision),
		Reason:     req.Reason,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

func (h *ChatHandler) push(id session.ID, msg *models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to encode message", "message_id", msg.ID, "error", err)
		return
	}
	if err := h.registry.Send(id, models.Event{Name: models.EventMessage, Data: string(data)}); err != nil {
		h.log.Debug("message not pushed", "session", id, "error", err)
	}
}

func pathUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
