// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"kiosk-engine/internal/db"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Source returns the embedded migration source.
func Source() (source.Driver, error) {
	d, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return d, nil
}

// Run applies migrations in the given direction using the provided DSN.
// direction must be "up" or "down". Returns nil on success and when already at the target version.
func Run(dsn string, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	m, err := open(dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version returns the applied schema version and whether the last migration left the schema dirty.
// A database with no migrations applied reports version 0.
func Version(dsn string) (uint, bool, error) {
	m, err := open(dsn)
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = m.Close() }()
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func open(dsn string) (*migrate.Migrate, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DATABASE_URL is not set; set DATABASE_URL to a Postgres DSN")
	}
	src, err := Source()
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}
