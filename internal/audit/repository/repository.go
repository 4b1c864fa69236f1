package repository

import (
	"context"

	"kiosk-engine/internal/audit/domain"
)

// Repository defines persistence for the admin audit log.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns at most limit entries, newest first.
	List(ctx context.Context, limit int) ([]*domain.AuditLog, error)
}
