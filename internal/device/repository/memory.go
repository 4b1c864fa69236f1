package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/device/domain"
)

type deviceEntry struct {
	mu sync.Mutex
	d  domain.Device
}

// MemoryRepository is an in-memory Repository for tests and local development.
// Each device has its own lock, so heartbeats for different kiosks never contend.
type MemoryRepository struct {
	devices *xsync.Map[string, *deviceEntry]
}

// NewMemoryRepository returns an empty in-memory device repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: xsync.NewMap[string, *deviceEntry]()}
}

// GetByKioskID returns a copy of the device, or nil if not found.
func (r *MemoryRepository) GetByKioskID(ctx context.Context, kioskID string) (*domain.Device, error) {
	e, ok := r.devices.Load(kioskID)
	if !ok {
		return nil, nil
	}
	return e.snapshot(), nil
}

// List returns copies of all devices ordered by kiosk id.
func (r *MemoryRepository) List(ctx context.Context) ([]*domain.Device, error) {
	var out []*domain.Device
	r.devices.Range(func(_ string, e *deviceEntry) bool {
		out = append(out, e.snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].KioskID < out[j].KioskID })
	return out, nil
}

// Upsert stores d if its kiosk id is new and returns the stored device.
func (r *MemoryRepository) Upsert(ctx context.Context, d *domain.Device) (*domain.Device, error) {
	e, _ := r.devices.LoadOrStore(d.KioskID, &deviceEntry{d: copyDevice(d)})
	return e.snapshot(), nil
}

// SetActive sets the enablement flag for the kiosk.
func (r *MemoryRepository) SetActive(ctx context.Context, kioskID string, active bool) error {
	e, ok := r.devices.Load(kioskID)
	if !ok {
		return apperr.Wrap(apperr.ErrNotFound, "kiosk %s", kioskID)
	}
	e.mu.Lock()
	e.d.IsActive = active
	e.mu.Unlock()
	return nil
}

// AdvanceHeartbeat moves the heartbeat forward only.
func (r *MemoryRepository) AdvanceHeartbeat(ctx context.Context, kioskID string, at time.Time) (bool, error) {
	e, ok := r.devices.Load(kioskID)
	if !ok {
		return false, apperr.Wrap(apperr.ErrNotFound, "kiosk %s", kioskID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.d.LastHeartbeatAt != nil && !at.After(*e.d.LastHeartbeatAt) {
		return false, nil
	}
	t := at
	e.d.LastHeartbeatAt = &t
	return true, nil
}

func (e *deviceEntry) snapshot() *domain.Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := copyDevice(&e.d)
	return &d
}

func copyDevice(d *domain.Device) domain.Device {
	out := *d
	if d.LastHeartbeatAt != nil {
		t := *d.LastHeartbeatAt
		out.LastHeartbeatAt = &t
	}
	return out
}
