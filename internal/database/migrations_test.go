package database

import (
	"testing"
)

func TestMigrations_UniqueVersions(t *testing.T) {
	seen := map[int]bool{}
	for _, m := range Migrations {
		if seen[m.Version] {
			t.Fatalf("duplicate migration version %d", m.Version)
		}
		seen[m.Version] = true
		if m.Up == "" || m.Down == "" {
			t.Errorf("migration %d must have both up and down", m.Version)
		}
	}
}
