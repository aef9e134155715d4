package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	MaxModerationReasonLength = 200
	// AutoModerationReason marks entries queued by the posting heuristic
	AutoModerationReason = "auto"
)

var ErrInvalidDecision = errors.New("invalid decision")

// Decision is a reviewer's verdict on a pending message
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionRemove  Decision = "remove"
)

func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApprove, DecisionRemove:
		return Decision(s), nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidDecision, s)
}

// Status returns the message status a decision resolves to
func (d Decision) Status() MessageStatus {
	if d == DecisionApprove {
		return StatusVisible
	}
	return StatusRemoved
}

// ModerationItem is a pending message joined with its room name, for queue display
type ModerationItem struct {
	MessageID uuid.UUID `json:"message_id" db:"message_id"`
	RoomID    uuid.UUID `json:"room_id" db:"room_id"`
	RoomName  RoomName  `json:"room_name" db:"room_name"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Body      string    `json:"body" db:"body"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ModerateRequest struct {
	Decision string  `json:"decision" binding:"required,oneof=approve remove"`
	Reason   *string `json:"reason,omitempty" binding:"omitempty,max=200"`
}

// AuditAction names a state-changing action recorded in the audit log
type AuditAction string

const (
	AuditRoomCreate      AuditAction = "room.create"
	AuditRoomJoin        AuditAction = "room.join"
	AuditMessagePost     AuditAction = "message.post"
	AuditMessageModerate AuditAction = "message.moderate"
)

// MetaPair is one ordered key/value entry of audit metadata
type MetaPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AuditEntry is an append-only record. It is never updated once written.
type AuditEntry struct {
	RoomID      *uuid.UUID  `json:"room_id,omitempty" db:"room_id"`
	ActorID     uuid.UUID   `json:"actor_id" db:"actor_id"`
	Action      AuditAction `json:"action" db:"action"`
	Metadata    []MetaPair  `json:"metadata" db:"metadata"`
	TimestampMS int64       `json:"timestamp_ms" db:"timestamp_ms"`
}

// Meta returns the first value stored under key
func (e AuditEntry) Meta(key string) (string, bool) {
	for _, p := range e.Metadata {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}
