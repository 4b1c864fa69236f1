package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"kiosk-engine/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// Use from request paths for fire-and-forget, best-effort analytics; errors are logged.
//
// emitter and event may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses context.Background() with emitTimeout so request cancellation does not abort in-flight emit.
func EmitAsync(emitter EventEmitter, log zerolog.Logger, event *domain.SessionEvent) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Warn().Err(err).Str("session_id", event.SessionID).Msg("telemetry: async emit failed")
		}
	}()
}
