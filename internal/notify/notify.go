// Package notify publishes best-effort change notifications so pollers can react sooner. Delivery
// is not guaranteed; clients still poll.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	handoffdomain "kiosk-engine/internal/handoff/domain"
	sessiondomain "kiosk-engine/internal/session/domain"
)

// Subject prefixes. The full subject appends the token or session id.
const (
	HandoffSubjectPrefix = "kiosk.handoff."
	SessionSubjectPrefix = "kiosk.session."
)

// HandoffChange is the payload published when a handoff changes state.
type HandoffChange struct {
	Token           string    `json:"token"`
	ParentSessionID string    `json:"parentSessionId"`
	SlotIndex       int       `json:"slotIndex"`
	Status          string    `json:"status"`
	At              time.Time `json:"at"`
}

// SessionClosed is the payload published when a session ends.
type SessionClosed struct {
	SessionID string    `json:"sessionId"`
	KioskID   string    `json:"kioskId"`
	Outcome   string    `json:"outcome"`
	EndedAt   time.Time `json:"endedAt"`
}

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes changes on core NATS subjects.
type NATSNotifier struct {
	pub Publisher
	log zerolog.Logger
}

// NewNATSNotifier returns a notifier publishing through nc.
func NewNATSNotifier(nc *nats.Conn, log zerolog.Logger) *NATSNotifier {
	return NewNotifier(nc, log)
}

// NewNotifier returns a notifier publishing through pub.
func NewNotifier(pub Publisher, log zerolog.Logger) *NATSNotifier {
	return &NATSNotifier{pub: pub, log: log.With().Str("component", "notify").Logger()}
}

func (n *NATSNotifier) HandoffChanged(ctx context.Context, h *handoffdomain.Handoff) {
	if n == nil || h == nil {
		return
	}
	n.publish(HandoffSubjectPrefix+h.Token, HandoffChange{
		Token:           h.Token,
		ParentSessionID: h.ParentSessionID,
		SlotIndex:       h.SlotIndex,
		Status:          string(h.Status),
		At:              time.Now().UTC(),
	})
}

func (n *NATSNotifier) SessionClosed(ctx context.Context, s *sessiondomain.Session) {
	if n == nil || s == nil || s.EndedAt == nil {
		return
	}
	n.publish(SessionSubjectPrefix+s.ID, SessionClosed{
		SessionID: s.ID,
		KioskID:   s.KioskID,
		Outcome:   string(s.Outcome),
		EndedAt:   *s.EndedAt,
	})
}

func (n *NATSNotifier) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.log.Warn().Err(err).Str("subject", subject).Msg("notification encode failed")
		return
	}
	if err := n.pub.Publish(subject, data); err != nil {
		n.log.Warn().Err(err).Str("subject", subject).Msg("notification publish failed")
	}
}

// Noop discards every notification.
type Noop struct{}

func (Noop) HandoffChanged(context.Context, *handoffdomain.Handoff) {}
func (Noop) SessionClosed(context.Context, *sessiondomain.Session) {}
