package telemetry

import (
	"context"
	"errors"

	"kiosk-engine/internal/telemetry/domain"
)

// EventEmitter emits session events (e.g. to Kafka or OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.SessionEvent) error
}

// Fanout emits each event to every non-nil emitter and joins their errors.
type Fanout []EventEmitter

// Emit implements EventEmitter.
func (f Fanout) Emit(ctx context.Context, event *domain.SessionEvent) error {
	var errs []error
	for _, e := range f {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
