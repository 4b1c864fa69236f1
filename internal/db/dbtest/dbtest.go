// Package dbtest provides a migrated Postgres database for repository integration tests.
// Tests are skipped unless TEST_DATABASE_URL is set.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"kiosk-engine/internal/db"
	"kiosk-engine/internal/db/migrate"
)

// EnvVar names the DSN of a disposable test database.
const EnvVar = "TEST_DATABASE_URL"

// Open migrates the test database up, empties every table and returns a connection closed at test end.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv(EnvVar)
	if dsn == "" {
		t.Skipf("%s not set; skipping Postgres integration test", EnvVar)
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := db.Open(ctx, dsn, db.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := conn.ExecContext(ctx,
		`TRUNCATE admin_audit_log, handoff_sessions, kiosk_session_events, kiosk_sessions, kiosk_devices`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return conn
}
