package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"github.com/tullo/livechat/config"
	"github.com/tullo/livechat/internal/database"
	"github.com/tullo/livechat/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate [up|status]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Service: "livechat-migrate",
		Env:     cfg.Server.Env,
		Level:   cfg.Log.Level,
		Backend: logger.Backend(cfg.Log.Backend),
	})

	// Connect to database
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	switch command {
	case "up":
		if err := database.RunMigrations(db, log); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}

	case "status":
		showMigrationStatus(db, log)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Available commands: up, status")
		os.Exit(1)
	}
}

func showMigrationStatus(db *sql.DB, log *slog.Logger) {
	current, err := database.CurrentVersion(db)
	if err != nil {
		log.Error("failed to read schema version", "error", err)
		return
	}

	rows, err := db.Query("SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		log.Warn("no migrations found or table doesn't exist", "error", err)
		return
	}
	defer rows.Close()

	fmt.Printf("\nSchema version: %d\n", current)
	fmt.Println("Applied Migrations:")
	fmt.Println("-------------------")
	for rows.Next() {
		var version int
		var appliedAt string
		if err := rows.Scan(&version, &appliedAt); err != nil {
			log.Warn("error scanning row", "error", err)
			continue
		}
		fmt.Printf("Version %d - Applied at: %s\n", version, appliedAt)
	}
}
