// Package producer defines the interface for publishing session events to the analytics stream.
package producer

import (
	"context"

	"kiosk-engine/internal/telemetry/domain"
)

// Producer emits session events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *domain.SessionEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
