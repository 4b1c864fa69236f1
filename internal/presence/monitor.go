package presence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kiosk-engine/internal/apperr"
	devicedomain "kiosk-engine/internal/device/domain"
	"kiosk-engine/internal/platform/retry"
	"kiosk-engine/internal/telemetry"
)

// DeviceRepo is the device repository needed by the monitor.
type DeviceRepo interface {
	GetByKioskID(ctx context.Context, kioskID string) (*devicedomain.Device, error)
	List(ctx context.Context) ([]*devicedomain.Device, error)
	Upsert(ctx context.Context, d *devicedomain.Device) (*devicedomain.Device, error)
	SetActive(ctx context.Context, kioskID string, active bool) error
	AdvanceHeartbeat(ctx context.Context, kioskID string, at time.Time) (bool, error)
}

// OpenSessionChecker reports whether a kiosk currently has an in-progress session.
type OpenSessionChecker interface {
	HasOpenSession(ctx context.Context, kioskID string) (bool, error)
}

// KioskPresence is one row of a fleet listing.
type KioskPresence struct {
	Device           *devicedomain.Device
	HasActiveSession bool
	Status           Status
}

// Monitor records heartbeats and answers presence queries.
type Monitor struct {
	devices    DeviceRepo
	sessions   OpenSessionChecker
	thresholds Thresholds
	policy     retry.Policy
	metrics    *telemetry.Metrics
	log        zerolog.Logger
	nowF       func() time.Time
}

// NewMonitor returns a Monitor. sessions may be nil, in which case every kiosk is treated as idle.
// metrics may be nil.
func NewMonitor(devices DeviceRepo, sessions OpenSessionChecker, thresholds Thresholds, policy retry.Policy, metrics *telemetry.Metrics, log zerolog.Logger) *Monitor {
	return &Monitor{
		devices:    devices,
		sessions:   sessions,
		thresholds: thresholds,
		policy:     policy,
		metrics:    metrics,
		log:        log.With().Str("component", "presence").Logger(),
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.nowF = now
	return m
}

// RecordHeartbeat stores observedAt as the kiosk's last heartbeat unless an equal or later one is
// already stored. Timestamps from the future are clipped to now. Returns apperr.ErrNotFound for an
// unknown kiosk. Safe to retry.
func (m *Monitor) RecordHeartbeat(ctx context.Context, kioskID string, observedAt time.Time) error {
	if strings.TrimSpace(kioskID) == "" {
		return apperr.Wrap(apperr.ErrInvalidArgument, "kiosk id is required")
	}
	now := m.nowF()
	if observedAt.IsZero() || observedAt.After(now) {
		observedAt = now
	}
	observedAt = observedAt.UTC()
	advanced, err := retry.Do(ctx, m.policy, func(ctx context.Context) (bool, error) {
		return m.devices.AdvanceHeartbeat(ctx, kioskID, observedAt)
	})
	if err != nil {
		return err
	}
	m.metrics.Heartbeat(ctx)
	if !advanced {
		m.log.Debug().Str("kiosk_id", kioskID).Time("observed_at", observedAt).Msg("stale heartbeat ignored")
	}
	return nil
}

// Status returns the kiosk's presence at the current time. It returns apperr.ErrNotFound for an unknown
// kiosk and StatusUnknown (with a nil error) when the store cannot be read.
func (m *Monitor) Status(ctx context.Context, kioskID string) (Status, error) {
	d, err := retry.Do(ctx, m.policy, func(ctx context.Context) (*devicedomain.Device, error) {
		return m.devices.GetByKioskID(ctx, kioskID)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrStorageUnavailable) {
			m.log.Warn().Err(err).Str("kiosk_id", kioskID).Msg("presence degraded to unknown")
			return StatusUnknown, nil
		}
		return StatusUnknown, err
	}
	if d == nil {
		return StatusUnknown, apperr.Wrap(apperr.ErrNotFound, "kiosk %s", kioskID)
	}
	active, ok := m.hasActiveSession(ctx, kioskID)
	if !ok {
		return StatusUnknown, nil
	}
	return statusOf(IsOnline(d, m.nowF(), active, m.thresholds)), nil
}

// Fleet lists every device with its presence. On a device-list failure the error is returned; a failed
// session lookup marks only that kiosk unknown.
func (m *Monitor) Fleet(ctx context.Context) ([]KioskPresence, error) {
	devices, err := retry.Do(ctx, m.policy, func(ctx context.Context) ([]*devicedomain.Device, error) {
		return m.devices.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	now := m.nowF()
	out := make([]KioskPresence, 0, len(devices))
	for _, d := range devices {
		row := KioskPresence{Device: d, Status: StatusUnknown}
		if active, ok := m.hasActiveSession(ctx, d.KioskID); ok {
			row.HasActiveSession = active
			row.Status = statusOf(IsOnline(d, now, active, m.thresholds))
		}
		out = append(out, row)
	}
	return out, nil
}

// Register provisions a kiosk. Registering an existing kiosk returns it unchanged.
func (m *Monitor) Register(ctx context.Context, kioskID string) (*devicedomain.Device, error) {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "kiosk id is required")
	}
	d := &devicedomain.Device{
		ID:        uuid.New().String(),
		KioskID:   kioskID,
		IsActive:  true,
		CreatedAt: m.nowF(),
	}
	return retry.Do(ctx, m.policy, func(ctx context.Context) (*devicedomain.Device, error) {
		return m.devices.Upsert(ctx, d)
	})
}

// SetActive enables or disables a kiosk. A disabled kiosk is always offline.
func (m *Monitor) SetActive(ctx context.Context, kioskID string, active bool) error {
	return retry.Exec(ctx, m.policy, func(ctx context.Context) error {
		return m.devices.SetActive(ctx, kioskID, active)
	})
}

func (m *Monitor) hasActiveSession(ctx context.Context, kioskID string) (active, ok bool) {
	if m.sessions == nil {
		return false, true
	}
	active, err := retry.Do(ctx, m.policy, func(ctx context.Context) (bool, error) {
		return m.sessions.HasOpenSession(ctx, kioskID)
	})
	if err != nil {
		m.log.Warn().Err(err).Str("kiosk_id", kioskID).Msg("open session lookup failed")
		return false, false
	}
	return active, true
}
