package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE TABLE IF NOT EXISTS rooms (
				id UUID PRIMARY KEY,
				name VARCHAR(32) NOT NULL,
				created_by UUID NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_rooms_name ON rooms(name);
		`,
		Down: `
			DROP TABLE IF EXISTS rooms;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE TABLE IF NOT EXISTS room_members (
				room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
				user_id UUID NOT NULL,
				role VARCHAR(16) NOT NULL DEFAULT 'member',
				joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (room_id, user_id)
			);

			CREATE INDEX IF NOT EXISTS idx_room_members_user ON room_members(user_id);
		`,
		Down: `
			DROP TABLE IF EXISTS room_members;
		`,
	},
	{
		Version: 3,
		Up: `
			CREATE TABLE IF NOT EXISTS messages (
				id UUID PRIMARY KEY,
				room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
				user_id UUID NOT NULL,
				body VARCHAR(1000) NOT NULL,
				status VARCHAR(16) NOT NULL,
				client_id VARCHAR(64),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at DESC);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client ON messages(room_id, user_id, client_id) WHERE client_id IS NOT NULL;
		`,
		Down: `
			DROP TABLE IF EXISTS messages;
		`,
	},
	{
		Version: 4,
		Up: `
			CREATE TABLE IF NOT EXISTS moderation_queue (
				message_id UUID PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
				reason VARCHAR(200) NOT NULL,
				reviewer_id UUID,
				decision VARCHAR(16),
				decision_reason VARCHAR(200),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMPTZ
			);

			CREATE INDEX IF NOT EXISTS idx_moderation_queue_pending ON moderation_queue(created_at) WHERE completed_at IS NULL;
		`,
		Down: `
			DROP TABLE IF EXISTS moderation_queue;
		`,
	},
	{
		Version: 5,
		Up: `
			CREATE TABLE IF NOT EXISTS audit_log (
				id BIGSERIAL PRIMARY KEY,
				room_id UUID,
				actor_id UUID NOT NULL,
				action VARCHAR(32) NOT NULL,
				metadata JSONB NOT NULL DEFAULT '[]',
				timestamp_ms BIGINT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_audit_log_room ON audit_log(room_id);
		`,
		Down: `
			DROP TABLE IF EXISTS audit_log;
		`,
	},
	{
		Version: 6,
		Up: `
			CREATE TABLE IF NOT EXISTS rate_limits (
				room_id UUID NOT NULL,
				user_id UUID NOT NULL,
				window_start TIMESTAMPTZ NOT NULL,
				count INT NOT NULL,
				PRIMARY KEY (room_id, user_id)
			);
		`,
		Down: `
			DROP TABLE IF EXISTS rate_limits;
		`,
	},
}

// RunMigrations runs all pending migrations
func RunMigrations(db *sql.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	// Ensure migrations table exists
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	// Get current version
	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	// Run pending migrations in ascending order by version
	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, migration := range sorted {
		if migration.Version <= currentVersion {
			continue
		}

		log.Info("running migration", "version", migration.Version)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// CurrentVersion returns the highest applied migration version, 0 when none
func CurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
