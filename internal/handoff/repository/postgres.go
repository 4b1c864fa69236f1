package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/handoff/domain"
)

const handoffColumns = `token, slot_index, parent_session_id, status, created_at, expires_at, completed_at,
	image_content_type, image_inline, image_blob_key, image_size, idempotency_key`

const foreignKeyViolation = "23503"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a handoff repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, h *domain.Handoff) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO handoff_sessions (token, slot_index, parent_session_id, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		h.Token, h.SlotIndex, h.ParentSessionID, string(h.Status), h.CreatedAt, h.ExpiresAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return apperr.Wrap(apperr.ErrInvalidReference, "session %s", h.ParentSessionID)
	}
	return err
}

// Get returns the handoff for token, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, token string) (*domain.Handoff, error) {
	h, err := scanHandoff(r.db.QueryRowContext(ctx, `SELECT `+handoffColumns+` FROM handoff_sessions WHERE token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// Complete is a compare-and-set on status; the row lock of the UPDATE serializes racing completions.
func (r *PostgresRepository) Complete(ctx context.Context, token string, img *domain.Image, idempotencyKey string, now time.Time) (*domain.Handoff, error) {
	var inline []byte
	var blobKey sql.NullString
	if img.BlobKey != "" {
		blobKey = sql.NullString{String: img.BlobKey, Valid: true}
	} else {
		inline = img.Inline
	}
	h, err := scanHandoff(r.db.QueryRowContext(ctx,
		`UPDATE handoff_sessions
		 SET status = 'completed', completed_at = $2, image_content_type = $3, image_inline = $4,
		     image_blob_key = $5, image_size = $6, idempotency_key = NULLIF($7, '')
		 WHERE token = $1 AND status = 'pending' AND expires_at >= $2
		 RETURNING `+handoffColumns,
		token, now, img.ContentType, inline, blobKey, img.Size, idempotencyKey))
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM handoff_sessions WHERE token = $1`, token).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.ErrNotFound, "handoff %s", token)
	}
	if err != nil {
		return nil, err
	}
	if domain.Status(status) == domain.StatusCompleted {
		return nil, apperr.Wrap(apperr.ErrAlreadyCompleted, "handoff %s", token)
	}
	return nil, apperr.Wrap(apperr.ErrExpired, "handoff %s", token)
}

func (r *PostgresRepository) MarkExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE handoff_sessions SET status = 'expired'
		 WHERE token = $1 AND status = 'pending' AND expires_at < $2`,
		token, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) (*domain.Handoff, error) {
	h, err := scanHandoff(r.db.QueryRowContext(ctx,
		`DELETE FROM handoff_sessions WHERE token = $1 RETURNING `+handoffColumns, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Handoff, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM handoff_sessions WHERE token IN (
		     SELECT token FROM handoff_sessions WHERE expires_at < $1 ORDER BY expires_at LIMIT $2
		 ) RETURNING `+handoffColumns,
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHandoff(row rowScanner) (*domain.Handoff, error) {
	var (
		h           domain.Handoff
		status      string
		completedAt sql.NullTime
		contentType sql.NullString
		inline      []byte
		blobKey     sql.NullString
		size        sql.NullInt64
		idemKey     sql.NullString
	)
	if err := row.Scan(&h.Token, &h.SlotIndex, &h.ParentSessionID, &status, &h.CreatedAt, &h.ExpiresAt,
		&completedAt, &contentType, &inline, &blobKey, &size, &idemKey); err != nil {
		return nil, err
	}
	h.Status = domain.Status(status)
	h.CreatedAt = h.CreatedAt.UTC()
	h.ExpiresAt = h.ExpiresAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		h.CompletedAt = &t
	}
	if contentType.Valid {
		h.Image = &domain.Image{
			ContentType: contentType.String,
			Inline:      inline,
			BlobKey:     blobKey.String,
			Size:        size.Int64,
		}
	}
	h.IdempotencyKey = idemKey.String
	return &h, nil
}
