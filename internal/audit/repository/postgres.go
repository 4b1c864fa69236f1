package repository

import (
	"context"
	"database/sql"

	"kiosk-engine/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_audit_log (id, subject, action, resource, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Subject, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	return err
}

// List returns the newest entries first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subject, action, resource, ip, metadata, created_at
		 FROM admin_audit_log ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a    domain.AuditLog
			meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Subject, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Metadata = meta.String
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, &a)
	}
	return out, rows.Err()
}
