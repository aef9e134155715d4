package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/database"
	"github.com/tullo/livechat/internal/models"
)

// ModerationRepository is the durable moderation queue
type ModerationRepository struct {
	db *database.DB
}

func NewModerationRepository(db *database.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

// Enqueue adds a message to the review queue
func (r *ModerationRepository) Enqueue(ctx context.Context, messageID uuid.UUID, reason string) error {
	query := `INSERT INTO moderation_queue (message_id, reason, created_at) VALUES ($1, $2, NOW()) ON CONFLICT (message_id) DO NOTHING`
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, messageID, truncate(reason, models.MaxModerationReasonLength)); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

// ListPending returns the oldest pending entries first
func (r *ModerationRepository) ListPending(ctx context.Context, limit int) ([]models.ModerationItem, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT q.message_id, m.room_id, r.name, m.user_id, m.body, q.reason, m.created_at
		FROM moderation_queue q
		INNER JOIN messages m ON m.id = q.message_id
		INNER JOIN rooms r ON r.id = m.room_id
		WHERE q.completed_at IS NULL
		ORDER BY q.created_at
		LIMIT $1
	`
	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query moderation queue: %w", err)
	}
	defer rows.Close()

	res := []models.ModerationItem{}
	for rows.Next() {
		var (
			item     models.ModerationItem
			roomName string
		)
		if err := rows.Scan(&item.MessageID, &item.RoomID, &roomName, &item.UserID, &item.Body, &item.Reason, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan moderation item: %w", err)
		}
		if item.RoomName, err = models.ParseRoomName(roomName); err != nil {
			return nil, fmt.Errorf("moderation item %s: %w", item.MessageID, err)
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// Complete records the reviewer decision. Messages that were never queued get a completed entry.
func (r *ModerationRepository) Complete(ctx context.Context, messageID, reviewerID uuid.UUID, decision models.Decision, reason *string) error {
	var decisionReason *string
	if reason != nil {
		s := truncate(*reason, models.MaxModerationReasonLength)
		decisionReason = &s
	}
	query := `
		INSERT INTO moderation_queue (message_id, reason, reviewer_id, decision, decision_reason, created_at, completed_at)
		VALUES ($1, 'manual', $2, $3, $4, NOW(), NOW())
		ON CONFLICT (message_id) DO UPDATE SET
			reviewer_id = EXCLUDED.reviewer_id,
			decision = EXCLUDED.decision,
			decision_reason = EXCLUDED.decision_reason,
			completed_at = EXCLUDED.completed_at
	`
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, messageID, reviewerID, string(decision), decisionReason); err != nil {
		return fmt.Errorf("failed to complete moderation: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
