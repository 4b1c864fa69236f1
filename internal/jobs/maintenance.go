package jobs

import (
	"context"
	"time"

	handoffservice "kiosk-engine/internal/handoff/service"
	sessionservice "kiosk-engine/internal/session/service"
)

// ReapStaleSessions closes sessions open longer than ceiling as abandoned.
func ReapStaleSessions(tracker *sessionservice.Tracker, ceiling time.Duration) Job {
	return Job{
		Name: "reap_stale_sessions",
		Run: func(ctx context.Context) (int, error) {
			return tracker.ReapStaleSessions(ctx, ceiling)
		},
	}
}

// SweepHandoffs deletes handoffs past their retention window together with their blobs.
func SweepHandoffs(broker *handoffservice.Broker) Job {
	return Job{Name: "sweep_handoffs", Run: broker.Sweep}
}
