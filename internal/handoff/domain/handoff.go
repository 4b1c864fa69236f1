package domain

import "time"

// Status is the lifecycle state of a handoff. Transitions are pending to completed or pending to expired.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Image is the payload a phone uploaded into a handoff. Exactly one of Inline and BlobKey is set.
type Image struct {
	ContentType string
	Inline      []byte
	BlobKey     string
	Size        int64
}

// Handoff is a short-lived capability letting a phone fill one slot of a kiosk session.
type Handoff struct {
	Token           string
	SlotIndex       int
	ParentSessionID string
	Status          Status
	CreatedAt       time.Time
	ExpiresAt       time.Time
	CompletedAt     *time.Time
	Image           *Image
	// IdempotencyKey is the key of the upload that completed the handoff, if the client sent one.
	IdempotencyKey string
}

// PastExpiry reports whether now is after the expiry instant.
func (h *Handoff) PastExpiry(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

// EffectiveStatus is the status as observed at now: a pending handoff past its expiry is expired
// whether or not that has been written back yet.
func (h *Handoff) EffectiveStatus(now time.Time) Status {
	if h.Status == StatusPending && h.PastExpiry(now) {
		return StatusExpired
	}
	return h.Status
}
