package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tullo/livechat/internal/database"
	"github.com/tullo/livechat/internal/models"
)

type RoomRepository struct {
	db *database.DB
}

func NewRoomRepository(db *database.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// CreateRoom creates a new room
func (r *RoomRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (id, name, created_by, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.Conn(ctx).QueryRowContext(ctx, query,
		room.ID,
		string(room.Name),
		room.CreatedBy,
		room.CreatedAt,
	).Scan(&room.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	return nil
}

// FindRoom retrieves a room by ID, nil when it does not exist
func (r *RoomRepository) FindRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	query := `SELECT id, name, created_by, created_at FROM rooms WHERE id = $1`
	return r.scanRoom(r.db.Conn(ctx).QueryRowContext(ctx, query, id))
}

// FindRoomByName retrieves the oldest room carrying name, nil when none does
func (r *RoomRepository) FindRoomByName(ctx context.Context, name models.RoomName) (*models.Room, error) {
	query := `SELECT id, name, created_by, created_at FROM rooms WHERE name = $1 ORDER BY created_at LIMIT 1`
	return r.scanRoom(r.db.Conn(ctx).QueryRowContext(ctx, query, string(name)))
}

func (r *RoomRepository) scanRoom(row *sql.Row) (*models.Room, error) {
	var (
		room models.Room
		name string
	)
	err := row.Scan(&room.ID, &name, &room.CreatedBy, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	room.Name, err = models.ParseRoomName(name)
	if err != nil {
		return nil, fmt.Errorf("stored room %s: %w", room.ID, err)
	}
	return &room, nil
}

// AddMembership adds a member to a room. Existing memberships are kept as
// they are and added is false.
func (r *RoomRepository) AddMembership(ctx context.Context, roomID, userID uuid.UUID, role models.Role) (bool, error) {
	query := `
		INSERT INTO room_members (room_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (room_id, user_id) DO NOTHING
	`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, roomID, userID, string(role))
	if err != nil {
		return false, fmt.Errorf("failed to add member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// IsMember checks if a user is a member of a room
func (r *RoomRepository) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM room_members
			WHERE room_id = $1 AND user_id = $2
		)
	`

	var exists bool
	err := r.db.Conn(ctx).QueryRowContext(ctx, query, roomID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	return exists, nil
}
