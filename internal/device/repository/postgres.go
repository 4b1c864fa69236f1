package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/device/domain"
)

const deviceColumns = `id, kiosk_id, is_active, last_heartbeat_at, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByKioskID returns the device for kioskID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByKioskID(ctx context.Context, kioskID string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM kiosk_devices WHERE kiosk_id = $1`, kioskID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// List returns all devices ordered by kiosk id. Returns (nil, error) only on database errors.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM kiosk_devices ORDER BY kiosk_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Upsert inserts the device if its kiosk id is new and returns the stored row either way.
func (r *PostgresRepository) Upsert(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kiosk_devices (id, kiosk_id, is_active, last_heartbeat_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (kiosk_id) DO NOTHING`,
		d.ID, d.KioskID, d.IsActive, timeToNullTime(d.LastHeartbeatAt), d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r.GetByKioskID(ctx, d.KioskID)
}

// SetActive sets the enablement flag for the kiosk.
func (r *PostgresRepository) SetActive(ctx context.Context, kioskID string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE kiosk_devices SET is_active = $2 WHERE kiosk_id = $1`, kioskID, active)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Wrap(apperr.ErrNotFound, "kiosk %s", kioskID)
	}
	return nil
}

// AdvanceHeartbeat moves last_heartbeat_at forward with a conditional update, so concurrent
// and out-of-order heartbeats can never move it backward.
func (r *PostgresRepository) AdvanceHeartbeat(ctx context.Context, kioskID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE kiosk_devices SET last_heartbeat_at = $2
		 WHERE kiosk_id = $1 AND (last_heartbeat_at IS NULL OR last_heartbeat_at < $2)`,
		kioskID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM kiosk_devices WHERE kiosk_id = $1)`, kioskID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, apperr.Wrap(apperr.ErrNotFound, "kiosk %s", kioskID)
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var (
		d        domain.Device
		lastBeat sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.KioskID, &d.IsActive, &lastBeat, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.LastHeartbeatAt = nullTimeToPtr(lastBeat)
	return &d, nil
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
