package repository

import (
	"context"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/handoff/domain"
)

// ParentChecker reports whether a session id exists. It stands in for the foreign key of the
// Postgres schema.
type ParentChecker func(ctx context.Context, sessionID string) (bool, error)

// MemoryRepository is an in-memory Repository for tests and local development. Stored records are
// never mutated in place; every transition swaps in a new copy under the map's per-key compute lock.
type MemoryRepository struct {
	handoffs     *xsync.Map[string, *domain.Handoff]
	parentExists ParentChecker
}

// NewMemoryRepository returns an empty repository. parentExists may be nil to accept any parent.
func NewMemoryRepository(parentExists ParentChecker) *MemoryRepository {
	return &MemoryRepository{
		handoffs:     xsync.NewMap[string, *domain.Handoff](),
		parentExists: parentExists,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, h *domain.Handoff) error {
	if r.parentExists != nil {
		ok, err := r.parentExists(ctx, h.ParentSessionID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Wrap(apperr.ErrInvalidReference, "session %s", h.ParentSessionID)
		}
	}
	if _, loaded := r.handoffs.LoadOrStore(h.Token, copyHandoff(h)); loaded {
		return apperr.Wrap(apperr.ErrInvalidState, "handoff %s already exists", h.Token)
	}
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, token string) (*domain.Handoff, error) {
	h, ok := r.handoffs.Load(token)
	if !ok {
		return nil, nil
	}
	return copyHandoff(h), nil
}

func (r *MemoryRepository) Complete(ctx context.Context, token string, img *domain.Image, idempotencyKey string, now time.Time) (*domain.Handoff, error) {
	var (
		out    *domain.Handoff
		outErr error
	)
	r.handoffs.Compute(token, func(old *domain.Handoff, loaded bool) (*domain.Handoff, xsync.ComputeOp) {
		switch {
		case !loaded:
			outErr = apperr.Wrap(apperr.ErrNotFound, "handoff %s", token)
			return old, xsync.CancelOp
		case old.Status == domain.StatusCompleted:
			outErr = apperr.Wrap(apperr.ErrAlreadyCompleted, "handoff %s", token)
			return old, xsync.CancelOp
		case old.Status == domain.StatusExpired || old.PastExpiry(now):
			outErr = apperr.Wrap(apperr.ErrExpired, "handoff %s", token)
			return old, xsync.CancelOp
		}
		next := copyHandoff(old)
		at := now
		next.Status = domain.StatusCompleted
		next.CompletedAt = &at
		next.Image = copyImage(img)
		next.IdempotencyKey = idempotencyKey
		out = copyHandoff(next)
		return next, xsync.UpdateOp
	})
	return out, outErr
}

func (r *MemoryRepository) MarkExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	moved := false
	r.handoffs.Compute(token, func(old *domain.Handoff, loaded bool) (*domain.Handoff, xsync.ComputeOp) {
		if !loaded || old.Status != domain.StatusPending || !old.PastExpiry(now) {
			return old, xsync.CancelOp
		}
		next := copyHandoff(old)
		next.Status = domain.StatusExpired
		moved = true
		return next, xsync.UpdateOp
	})
	return moved, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, token string) (*domain.Handoff, error) {
	h, ok := r.handoffs.LoadAndDelete(token)
	if !ok {
		return nil, nil
	}
	return copyHandoff(h), nil
}

func (r *MemoryRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Handoff, error) {
	var tokens []*domain.Handoff
	r.handoffs.Range(func(_ string, h *domain.Handoff) bool {
		if h.ExpiresAt.Before(cutoff) {
			tokens = append(tokens, h)
		}
		return true
	})
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ExpiresAt.Before(tokens[j].ExpiresAt) })
	var out []*domain.Handoff
	for _, h := range tokens {
		if limit > 0 && len(out) >= limit {
			break
		}
		if deleted, ok := r.handoffs.LoadAndDelete(h.Token); ok {
			out = append(out, copyHandoff(deleted))
		}
	}
	return out, nil
}

func copyHandoff(h *domain.Handoff) *domain.Handoff {
	out := *h
	if h.CompletedAt != nil {
		t := *h.CompletedAt
		out.CompletedAt = &t
	}
	out.Image = copyImage(h.Image)
	return &out
}

func copyImage(img *domain.Image) *domain.Image {
	if img == nil {
		return nil
	}
	out := *img
	if img.Inline != nil {
		out.Inline = append([]byte(nil), img.Inline...)
	}
	return &out
}
