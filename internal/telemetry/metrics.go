package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "kiosk-engine"

// SessionDurationMetric is the histogram of closed-session durations in seconds.
const SessionDurationMetric = "kiosk.session.duration"

// Metrics holds the engine's OTel counters. A nil *Metrics records nothing.
type Metrics struct {
	heartbeats         metric.Int64Counter
	sessionEvents      metric.Int64Counter
	droppedEvents      metric.Int64Counter
	handoffCompletions metric.Int64Counter
	sessionsReaped     metric.Int64Counter
	sessionDuration    metric.Float64Histogram
}

// NewMetrics creates the counters on the given provider. A nil provider yields no-op counters.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &Metrics{}
	var err error
	if m.heartbeats, err = meter.Int64Counter("kiosk.heartbeats",
		metric.WithDescription("Heartbeats accepted from kiosks")); err != nil {
		return nil, err
	}
	if m.sessionEvents, err = meter.Int64Counter("kiosk.session.events",
		metric.WithDescription("Session events recorded")); err != nil {
		return nil, err
	}
	if m.droppedEvents, err = meter.Int64Counter("kiosk.session.events_dropped",
		metric.WithDescription("Session events dropped because the session was closed")); err != nil {
		return nil, err
	}
	if m.handoffCompletions, err = meter.Int64Counter("kiosk.handoff.completions",
		metric.WithDescription("Handoff completion attempts by result")); err != nil {
		return nil, err
	}
	if m.sessionsReaped, err = meter.Int64Counter("kiosk.sessions.reaped",
		metric.WithDescription("Stale sessions closed as abandoned")); err != nil {
		return nil, err
	}
	if m.sessionDuration, err = meter.Float64Histogram(SessionDurationMetric,
		metric.WithUnit("s"),
		metric.WithDescription("Duration of closed sessions by outcome")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Heartbeat(ctx context.Context) {
	if m == nil {
		return
	}
	m.heartbeats.Add(ctx, 1)
}

func (m *Metrics) SessionEvent(ctx context.Context, category string) {
	if m == nil {
		return
	}
	m.sessionEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

func (m *Metrics) DroppedEvent(ctx context.Context) {
	if m == nil {
		return
	}
	m.droppedEvents.Add(ctx, 1)
}

// HandoffCompletion records one completion attempt; result is e.g. "completed", "expired", "already_completed".
func (m *Metrics) HandoffCompletion(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.handoffCompletions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) SessionsReaped(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsReaped.Add(ctx, int64(n))
}

// SessionClosed records the duration of a session that just closed with outcome.
func (m *Metrics) SessionClosed(ctx context.Context, outcome string, durationSeconds int64) {
	if m == nil {
		return
	}
	m.sessionDuration.Record(ctx, float64(durationSeconds), metric.WithAttributes(attribute.String("outcome", outcome)))
}
