package testutil

import (
	"database/sql"
	"io/fs"
	"sort"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/pratik-mahalle/farmlink/internal/pkg/logger"
	"github.com/pratik-mahalle/farmlink/migrations"
)

// NewTestDB creates an in-memory SQLite database with every migration applied
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	names, err := fs.Glob(migrations.GetFS(), "*.sql")
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(migrations.GetFS(), name)
		if err != nil {
			t.Fatalf("Failed to read migration %s: %v", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			t.Fatalf("Failed to apply migration %s: %v", name, err)
		}
	}

	return db
}

// CleanupDB closes the test database
func CleanupDB(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}

// NewTestLogger returns a logger that discards output
func NewTestLogger() *logger.Logger {
	return logger.NewNop()
}
