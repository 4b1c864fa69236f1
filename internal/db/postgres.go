// Package db opens the Postgres connection and embeds the schema migrations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// PoolConfig bounds the database/sql connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns the pool limits used by the server.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute}
}

// Open parses dsn with pgx, opens a pool through the pgx stdlib driver and pings it within ctx.
// Caller must call Close when done.
func Open(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: DSN is empty")
	}
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connCfg)
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
