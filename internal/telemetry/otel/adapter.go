package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"kiosk-engine/internal/telemetry"
	"kiosk-engine/internal/telemetry/domain"
)

// recordEmitter is the subset of otellog.Logger used by the emitter.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends session events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("kiosk.session.events")}
}

// NewEventEmitterWithLogger returns an emitter writing to the given logger.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.SessionEvent) error { return nil }

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the session event to an OTel log record. The body is the JSON-encoded details.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.SessionEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.OccurredAt.IsZero() {
		rec.SetTimestamp(event.OccurredAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if len(event.Details) > 0 {
		body, err := json.Marshal(event.Details)
		if err != nil {
			return err
		}
		rec.SetBody(otellog.BytesValue(body))
	}
	for _, kv := range []struct{ k, v string }{
		{"event_id", event.EventID},
		{"session_id", event.SessionID},
		{"kiosk_id", event.KioskID},
		{"category", event.Category},
		{"action", event.Action},
		{"flag", event.Flag},
	} {
		if kv.v != "" {
			rec.AddAttributes(otellog.String(kv.k, kv.v))
		}
	}
	e.logger.Emit(ctx, rec)
	return nil
}
