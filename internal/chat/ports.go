package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/models"
)

// ChatRepository persists rooms, messages and memberships.
// Find methods return (nil, nil) when nothing matches.
type ChatRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	FindRoomByName(ctx context.Context, name models.RoomName) (*models.Room, error)
	// ListMessages returns at most limit messages ordered by creation time, newest first.
	ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error)
	FindMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// FindMessageByClientID looks up a message by the poster's idempotency key.
	FindMessageByClientID(ctx context.Context, roomID, userID uuid.UUID, clientID string) (*models.Message, error)
	// InsertMessage returns ErrDuplicateClientID when the poster already used msg.ClientID in the room.
	InsertMessage(ctx context.Context, msg *models.Message) error
	// AddMembership is idempotent: an existing membership is left untouched
	// and added is false.
	AddMembership(ctx context.Context, roomID, userID uuid.UUID, role models.Role) (added bool, err error)
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	UpdateMessageStatus(ctx context.Context, id uuid.UUID, status models.MessageStatus) error
}

// RateLimiter returns ErrRateLimited when the user may not post in the room right now.
type RateLimiter interface {
	Check(ctx context.Context, roomID, userID uuid.UUID) error
}

type ModerationQueue interface {
	Enqueue(ctx context.Context, messageID uuid.UUID, reason string) error
	ListPending(ctx context.Context, limit int) ([]models.ModerationItem, error)
	Complete(ctx context.Context, messageID, reviewerID uuid.UUID, decision models.Decision, reason *string) error
}

type AuditLog interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

// Transactor runs fn so that every repository call made with the ctx it
// receives commits or rolls back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewRoomID() uuid.UUID
	NewMessageID() uuid.UUID
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// UUIDGenerator issues random v4 identifiers
type UUIDGenerator struct{}

func (UUIDGenerator) NewRoomID() uuid.UUID    { return uuid.New() }
func (UUIDGenerator) NewMessageID() uuid.UUID { return uuid.New() }
