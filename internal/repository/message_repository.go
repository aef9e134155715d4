package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/chat"
	"github.com/tullo/livechat/internal/database"
	"github.com/tullo/livechat/internal/models"
)

type MessageRepository struct {
	db *database.DB
}

func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// InsertMessage creates a new message. A client id the poster already used
// in the room yields chat.ErrDuplicateClientID.
func (r *MessageRepository) InsertMessage(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (id, room_id, user_id, body, status, client_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (room_id, user_id, client_id) WHERE client_id IS NOT NULL DO NOTHING
		RETURNING created_at
	`

	err := r.db.Conn(ctx).QueryRowContext(ctx, query,
		message.ID,
		message.RoomID,
		message.UserID,
		message.Body,
		string(message.Status),
		message.ClientID,
		message.CreatedAt,
	).Scan(&message.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.ErrDuplicateClientID
	}
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// FindMessageByClientID retrieves the message a poster sent with clientID, nil when there is none
func (r *MessageRepository) FindMessageByClientID(ctx context.Context, roomID, userID uuid.UUID, clientID string) (*models.Message, error) {
	query := `
		SELECT id, room_id, user_id, body, status, client_id, created_at
		FROM messages
		WHERE room_id = $1 AND user_id = $2 AND client_id = $3
	`

	message, err := scanMessage(r.db.Conn(ctx).QueryRowContext(ctx, query, roomID, userID, clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by client id: %w", err)
	}

	return message, nil
}

// FindMessage retrieves a message by ID, nil when it does not exist
func (r *MessageRepository) FindMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `
		SELECT id, room_id, user_id, body, status, client_id, created_at
		FROM messages
		WHERE id = $1
	`

	message, err := scanMessage(r.db.Conn(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return message, nil
}

// ListMessages retrieves the newest messages of a room, newest first
func (r *MessageRepository) ListMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, room_id, user_id, body, status, client_id, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}

	return messages, rows.Err()
}

// UpdateMessageStatus sets the moderation status of a message
func (r *MessageRepository) UpdateMessageStatus(ctx context.Context, id uuid.UUID, status models.MessageStatus) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx, `UPDATE messages SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}

	return requireAffected(result, id)
}

// requireAffected maps an update that matched no row to chat.ErrMessageNotFound
func requireAffected(result sql.Result, id uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("message %s: %w", id, chat.ErrMessageNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		msg      models.Message
		status   string
		clientID sql.NullString
	)
	if err := row.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Body, &status, &clientID, &msg.CreatedAt); err != nil {
		return nil, err
	}

	s, err := models.ParseMessageStatus(status)
	if err != nil {
		return nil, err
	}
	msg.Status = s
	if clientID.Valid {
		msg.ClientID = &clientID.String
	}
	return &msg, nil
}
