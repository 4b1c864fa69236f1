package domain

import "time"

// SessionEvent is the analytics record emitted for every accepted kiosk session event.
// It is serialized as JSON onto the session event stream and read back by the worker.
type SessionEvent struct {
	EventID    string         `json:"eventId"`
	SessionID  string         `json:"sessionId"`
	KioskID    string         `json:"kioskId"`
	Category   string         `json:"category"`
	Action     string         `json:"action"`
	Flag       string         `json:"flag,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
