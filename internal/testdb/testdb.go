// Package testdb provides helpers for tests that need the chain archive
// database. Tests are skipped unless a database URL is configured.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/reelchain/internal/platform/postgres"
)

// URLEnvVars are checked in order for the test database URL.
var URLEnvVars = []string{"REELCHAIN_TEST_DATABASE_URL", "REELCHAIN_DATABASE_URL", "DATABASE_URL"}

// GetTestDatabaseURL returns the first configured database URL, or "".
func GetTestDatabaseURL() string {
	for _, name := range URLEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Open connects to the test database and applies migrations. The test is
// skipped when no URL is configured and the connection is closed on cleanup.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("Skipping integration test - set REELCHAIN_TEST_DATABASE_URL or DATABASE_URL")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, dbURL, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})

	if err := postgres.Migrate(ctx, db, logger); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// WithTx runs fn inside a transaction that is always rolled back, so tests
// can write freely without affecting each other.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}
