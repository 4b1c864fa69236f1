package repository

import (
	"context"
	"sync"

	"kiosk-engine/internal/audit/domain"
)

// MemoryRepository is an in-memory audit log for tests and local development.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	r.entries = append(r.entries, *a)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AuditLog, 0, min(limit, len(r.entries)))
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		a := r.entries[i]
		out = append(out, &a)
	}
	return out, nil
}
