package repository

import (
	"context"
	"time"

	"kiosk-engine/internal/session/domain"
)

// Filter selects sessions for listing. Zero fields match everything. StartedFrom is inclusive,
// StartedTo exclusive.
type Filter struct {
	KioskID     string
	StartedFrom *time.Time
	StartedTo   *time.Time
}

// Matches reports whether s passes the filter.
func (f Filter) Matches(s *domain.Session) bool {
	if f.KioskID != "" && s.KioskID != f.KioskID {
		return false
	}
	if f.StartedFrom != nil && s.StartedAt.Before(*f.StartedFrom) {
		return false
	}
	if f.StartedTo != nil && !s.StartedAt.Before(*f.StartedTo) {
		return false
	}
	return true
}

// Repository defines persistence for kiosk sessions and their event logs.
// Implementations serialize writes per session and never lock across sessions.
type Repository interface {
	// Create inserts a new open session.
	Create(ctx context.Context, s *domain.Session) error
	// GetByID returns the session, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// List returns sessions matching f ordered by start time.
	List(ctx context.Context, f Filter) ([]*domain.Session, error)
	// ListOpenStartedBefore returns up to limit open sessions started before cutoff, oldest first.
	ListOpenStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Session, error)
	// HasOpenSession reports whether the kiosk has an in-progress session.
	HasOpenSession(ctx context.Context, kioskID string) (bool, error)
	// AppendEvent stores e, increments the session's event count and sets flag (if non-empty) in one
	// atomic step, returning the updated session. Returns apperr.ErrNotFound for an unknown session and
	// apperr.ErrInvalidState for a closed one; in both cases nothing is written.
	AppendEvent(ctx context.Context, e *domain.Event, flag domain.Flag) (*domain.Session, error)
	// ListEvents returns the session's events ordered by occurrence, then by append order.
	ListEvents(ctx context.Context, sessionID string) ([]*domain.Event, error)
	// Close moves an open session to outcome and returns the closed session. Returns
	// apperr.ErrNotFound for an unknown session and apperr.ErrInvalidState if it is already closed.
	Close(ctx context.Context, id string, outcome domain.Outcome, endedAt time.Time, durationSeconds int64) (*domain.Session, error)
}
