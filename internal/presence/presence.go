// Package presence derives kiosk online status from heartbeats. Status is computed on read and never stored.
package presence

import (
	"time"

	devicedomain "kiosk-engine/internal/device/domain"
)

// Status is the derived presence of a kiosk.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	// StatusUnknown is reported when the store could not be read. Callers treat it as offline.
	StatusUnknown Status = "unknown"
)

// Thresholds are the maximum heartbeat ages for which a kiosk is still online.
type Thresholds struct {
	// Idle applies when the kiosk has no open session.
	Idle time.Duration
	// Active applies while a session is open; it is longer because busy kiosks heartbeat less reliably.
	Active time.Duration
}

// DefaultThresholds returns 90s idle and 120s active.
func DefaultThresholds() Thresholds {
	return Thresholds{Idle: 90 * time.Second, Active: 120 * time.Second}
}

// IsOnline reports whether d is online at now. A disabled kiosk or one that never sent a
// heartbeat is offline; otherwise the heartbeat age is compared to the threshold selected by
// hasActiveSession. A heartbeat exactly at the threshold still counts.
func IsOnline(d *devicedomain.Device, now time.Time, hasActiveSession bool, th Thresholds) bool {
	if d == nil || !d.IsActive || d.LastHeartbeatAt == nil {
		return false
	}
	limit := th.Idle
	if hasActiveSession {
		limit = th.Active
	}
	return now.Sub(*d.LastHeartbeatAt) <= limit
}

func statusOf(online bool) Status {
	if online {
		return StatusOnline
	}
	return StatusOffline
}
