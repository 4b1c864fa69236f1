package repository

import (
	"context"
	"time"

	"kiosk-engine/internal/handoff/domain"
)

// Repository defines persistence for handoff sessions.
type Repository interface {
	// Create stores a new pending handoff. An unknown parent session is apperr.ErrInvalidReference.
	Create(ctx context.Context, h *domain.Handoff) error
	// Get returns the handoff, or nil if not found.
	Get(ctx context.Context, token string) (*domain.Handoff, error)
	// Complete moves a pending handoff whose expiry is not before now to completed, attaching img.
	// Otherwise nothing is written and the error is apperr.ErrNotFound, apperr.ErrAlreadyCompleted
	// or apperr.ErrExpired. Exactly one of any number of concurrent calls succeeds.
	Complete(ctx context.Context, token string, img *domain.Image, idempotencyKey string, now time.Time) (*domain.Handoff, error)
	// MarkExpired persists the expired status of a pending handoff past its expiry and reports
	// whether it did. It writes nothing for any other handoff.
	MarkExpired(ctx context.Context, token string, now time.Time) (bool, error)
	// Delete removes the handoff and returns what was removed, or nil if it did not exist.
	Delete(ctx context.Context, token string) (*domain.Handoff, error)
	// DeleteExpiredBefore removes up to limit handoffs whose expiry is before cutoff and returns them.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Handoff, error)
}
