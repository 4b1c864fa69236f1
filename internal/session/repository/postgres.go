package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/session/domain"
)

const sessionColumns = `id, kiosk_id, started_at, ended_at, outcome, total_events, duration_seconds,
	used_search, uploaded_image, used_editor, reached_checkout, completed_payment,
	browsed_greeting_cards, browsed_stickers, browsed_gift_cards`

// foreignKeyViolation is the Postgres SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts s. A kiosk_id without a device row is reported as apperr.ErrInvalidReference.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kiosk_sessions (id, kiosk_id, started_at, outcome) VALUES ($1, $2, $3, $4)`,
		s.ID, s.KioskID, s.StartedAt, string(s.Outcome))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return apperr.Wrap(apperr.ErrInvalidReference, "kiosk %s", s.KioskID)
	}
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM kiosk_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// List returns sessions matching f ordered by started_at.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*domain.Session, error) {
	var (
		where []string
		args  []any
	)
	if f.KioskID != "" {
		args = append(args, f.KioskID)
		where = append(where, fmt.Sprintf("kiosk_id = $%d", len(args)))
	}
	if f.StartedFrom != nil {
		args = append(args, *f.StartedFrom)
		where = append(where, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if f.StartedTo != nil {
		args = append(args, *f.StartedTo)
		where = append(where, fmt.Sprintf("started_at < $%d", len(args)))
	}
	q := `SELECT ` + sessionColumns + ` FROM kiosk_sessions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at, id`
	return r.querySessions(ctx, q, args...)
}

// ListOpenStartedBefore returns up to limit open sessions started before cutoff, oldest first.
func (r *PostgresRepository) ListOpenStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Session, error) {
	return r.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM kiosk_sessions
		 WHERE outcome = 'in_progress' AND started_at < $1
		 ORDER BY started_at LIMIT $2`,
		cutoff, limit)
}

// HasOpenSession reports whether the kiosk has an in-progress session.
func (r *PostgresRepository) HasOpenSession(ctx context.Context, kioskID string) (bool, error) {
	var open bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM kiosk_sessions WHERE kiosk_id = $1 AND outcome = 'in_progress')`,
		kioskID).Scan(&open)
	return open, err
}

// AppendEvent bumps the counter and flag with a conditional update on the open session row, then
// inserts the event in the same transaction. The row lock taken by the update serializes concurrent
// appends to one session; other sessions are unaffected.
func (r *PostgresRepository) AppendEvent(ctx context.Context, e *domain.Event, flag domain.Flag) (*domain.Session, error) {
	details := []byte(`{}`)
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrInvalidArgument, "event details: %v", err)
		}
		details = b
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	s, err := scanSession(tx.QueryRowContext(ctx,
		`UPDATE kiosk_sessions SET total_events = total_events + 1`+flagAssignment(flag)+
			` WHERE id = $1 AND outcome = 'in_progress'
		 RETURNING `+sessionColumns,
		e.SessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.notOpen(ctx, tx, e.SessionID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kiosk_session_events (id, session_id, category, action, details, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.SessionID, e.Category, e.Action, details, e.OccurredAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s, nil
}

// ListEvents returns the session's events ordered by occurred_at, then insertion order.
func (r *PostgresRepository) ListEvents(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, category, action, details, occurred_at
		 FROM kiosk_session_events WHERE session_id = $1 ORDER BY occurred_at, seq`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Category, &e.Action, &details, &e.OccurredAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close moves an open session to outcome with a conditional update, so a session closes exactly once.
func (r *PostgresRepository) Close(ctx context.Context, id string, outcome domain.Outcome, endedAt time.Time, durationSeconds int64) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`UPDATE kiosk_sessions SET outcome = $2, ended_at = $3, duration_seconds = $4
		 WHERE id = $1 AND outcome = 'in_progress'
		 RETURNING `+sessionColumns,
		id, string(outcome), endedAt, durationSeconds))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return nil, r.notOpen(ctx, r.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notOpen explains why a conditional update on an open session matched no row.
func (r *PostgresRepository) notOpen(ctx context.Context, q queryRower, id string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM kiosk_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.Wrap(apperr.ErrNotFound, "session %s", id)
	}
	return apperr.Wrap(apperr.ErrInvalidState, "session %s is closed", id)
}

func (r *PostgresRepository) querySessions(ctx context.Context, q string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// flagAssignment returns the SET clause fragment for flag. Only known flags produce a column name.
func flagAssignment(flag domain.Flag) string {
	for _, f := range domain.AllFlags {
		if f == flag {
			return ", " + string(f) + " = TRUE"
		}
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s        domain.Session
		outcome  string
		endedAt  sql.NullTime
		duration sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.KioskID, &s.StartedAt, &endedAt, &outcome, &s.TotalEvents, &duration,
		&s.Flags.UsedSearch, &s.Flags.UploadedImage, &s.Flags.UsedEditor, &s.Flags.ReachedCheckout,
		&s.Flags.CompletedPayment, &s.Flags.BrowsedGreetingCards, &s.Flags.BrowsedStickers,
		&s.Flags.BrowsedGiftCards); err != nil {
		return nil, err
	}
	s.StartedAt = s.StartedAt.UTC()
	s.Outcome = domain.Outcome(outcome)
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		s.EndedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		s.DurationSeconds = &d
	}
	return &s, nil
}
