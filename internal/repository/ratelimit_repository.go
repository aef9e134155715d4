package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/chat"
	"github.com/tullo/livechat/internal/database"
)

// RateLimitRepository is a fixed-window limiter kept in postgres. The window
// reset and the increment happen in a single upsert.
type RateLimitRepository struct {
	db     *database.DB
	window time.Duration
	max    int
	now    func() time.Time
}

func NewRateLimitRepository(db *database.DB, window time.Duration, max int) *RateLimitRepository {
	return &RateLimitRepository{db: db, window: window, max: max, now: time.Now}
}

// Check counts one post for (room, user) and fails once the window's budget is spent
func (r *RateLimitRepository) Check(ctx context.Context, roomID, userID uuid.UUID) error {
	query := `
		INSERT INTO rate_limits (room_id, user_id, window_start, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (room_id, user_id) DO UPDATE SET
			window_start = CASE WHEN rate_limits.window_start <= $3 - ($4 * INTERVAL '1 millisecond')
				THEN $3 ELSE rate_limits.window_start END,
			count = CASE WHEN rate_limits.window_start <= $3 - ($4 * INTERVAL '1 millisecond')
				THEN 1 ELSE rate_limits.count + 1 END
		RETURNING count
	`

	var count int
	err := r.db.Conn(ctx).QueryRowContext(ctx, query, roomID, userID, r.now(), r.window.Milliseconds()).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to update rate limit: %w", err)
	}
	if count > r.max {
		return chat.ErrRateLimited
	}
	return nil
}
