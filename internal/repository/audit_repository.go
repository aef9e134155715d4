package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tullo/livechat/internal/database"
	"github.com/tullo/livechat/internal/models"
)

// AuditRepository appends audit entries. Rows are never updated.
type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record stores one audit entry; metadata keeps its order as a JSON array
func (r *AuditRepository) Record(ctx context.Context, entry models.AuditEntry) error {
	meta := entry.Metadata
	if meta == nil {
		meta = []models.MetaPair{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	query := `INSERT INTO audit_log (room_id, actor_id, action, metadata, timestamp_ms, created_at) VALUES ($1, $2, $3, $4, $5, NOW())`
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, entry.RoomID, entry.ActorID, string(entry.Action), string(b), entry.TimestampMS); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
