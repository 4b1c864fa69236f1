package domain

import "time"

// Device is a provisioned kiosk. ID is the storage key; KioskID is the stable business key
// the kiosk reports in heartbeats.
type Device struct {
	ID              string
	KioskID         string
	IsActive        bool
	LastHeartbeatAt *time.Time // nil until the first heartbeat
	CreatedAt       time.Time
}
