package repository

import (
	"context"
	"time"

	"kiosk-engine/internal/device/domain"
)

// Repository defines persistence for kiosk devices.
type Repository interface {
	// GetByKioskID returns the device, or nil if not found.
	GetByKioskID(ctx context.Context, kioskID string) (*domain.Device, error)
	List(ctx context.Context) ([]*domain.Device, error)
	// Upsert creates the device or returns the existing one for d.KioskID unchanged.
	Upsert(ctx context.Context, d *domain.Device) (*domain.Device, error)
	// SetActive updates the enablement flag. Returns apperr.ErrNotFound for an unknown kiosk.
	SetActive(ctx context.Context, kioskID string, active bool) error
	// AdvanceHeartbeat sets last_heartbeat_at to at only if at is later than the stored value.
	// Returns whether the value moved, or apperr.ErrNotFound for an unknown kiosk.
	AdvanceHeartbeat(ctx context.Context, kioskID string, at time.Time) (bool, error)
}
