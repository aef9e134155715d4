package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const MaxMessageBodyLength = 1000

var ErrInvalidMessageBody = errors.New("invalid message body")

var validate = validator.New()

// NewMessageBody trims nothing but rejects blank bodies and bodies longer than
// MaxMessageBodyLength characters.
func NewMessageBody(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: body is empty", ErrInvalidMessageBody)
	}
	if err := validate.Var(body, fmt.Sprintf("max=%d", MaxMessageBodyLength)); err != nil {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidMessageBody, MaxMessageBodyLength)
	}
	return body, nil
}

// MessageStatus is the moderation state of a message
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusVisible MessageStatus = "visible"
	StatusRemoved MessageStatus = "removed"
)

// ParseMessageStatus converts a stored status string. Unknown values are an error.
func ParseMessageStatus(s string) (MessageStatus, error) {
	switch MessageStatus(s) {
	case StatusPending, StatusVisible, StatusRemoved:
		return MessageStatus(s), nil
	}
	return "", fmt.Errorf("unknown message status %q", s)
}

func (s MessageStatus) String() string { return string(s) }

type Message struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	RoomID    uuid.UUID     `json:"room_id" db:"room_id"`
	UserID    uuid.UUID     `json:"user_id" db:"user_id"`
	Body      string        `json:"body" db:"body"`
	Status    MessageStatus `json:"status" db:"status"`
	ClientID  *string       `json:"client_id,omitempty" db:"client_id"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

type SendMessageRequest struct {
	Body     string  `json:"body" binding:"required"`
	ClientID *string `json:"client_id,omitempty" binding:"omitempty,max=64"`
}

type GetMessagesRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}
