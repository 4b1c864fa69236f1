// Package service implements the kiosk session lifecycle: start, event recording, end and reaping
// of abandoned sessions.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kiosk-engine/internal/apperr"
	devicedomain "kiosk-engine/internal/device/domain"
	"kiosk-engine/internal/platform/retry"
	"kiosk-engine/internal/session/domain"
	"kiosk-engine/internal/session/repository"
	"kiosk-engine/internal/telemetry"
	telemetrydomain "kiosk-engine/internal/telemetry/domain"
)

// reapBatch is the number of stale sessions closed per store round trip.
const reapBatch = 100

// KioskLookup resolves a kiosk id to its device record (nil if unknown).
type KioskLookup interface {
	GetByKioskID(ctx context.Context, kioskID string) (*devicedomain.Device, error)
}

// SessionNotifier is told when a session closes. Best-effort.
type SessionNotifier interface {
	SessionClosed(ctx context.Context, s *domain.Session)
}

// Options holds the optional collaborators of a Tracker. Zero values are valid.
type Options struct {
	Policy   retry.Policy
	Metrics  *telemetry.Metrics
	Emitter  telemetry.EventEmitter
	Notifier SessionNotifier
	Logger   zerolog.Logger
}

// EventInput is one behavioral event reported by a kiosk.
type EventInput struct {
	Category   string
	Action     string
	Details    map[string]any
	OccurredAt time.Time
}

// ReplayResult compares a session's stored aggregates with a replay of its event log.
type ReplayResult struct {
	Stored         domain.Flags
	StoredEvents   int64
	Replayed       domain.Flags
	ReplayedEvents int64
}

// Consistent reports whether stored state equals the replay.
func (r ReplayResult) Consistent() bool {
	return r.Stored == r.Replayed && r.StoredEvents == r.ReplayedEvents
}

// Tracker owns session state transitions. It keeps no session state in process; every transition
// is a conditional write in the repository.
type Tracker struct {
	sessions repository.Repository
	kiosks   KioskLookup
	policy   retry.Policy
	metrics  *telemetry.Metrics
	emitter  telemetry.EventEmitter
	notifier SessionNotifier
	log      zerolog.Logger
	nowF     func() time.Time
}

// NewTracker returns a Tracker over the given repositories.
func NewTracker(sessions repository.Repository, kiosks KioskLookup, opts Options) *Tracker {
	return &Tracker{
		sessions: sessions,
		kiosks:   kiosks,
		policy:   opts.Policy,
		metrics:  opts.Metrics,
		emitter:  opts.Emitter,
		notifier: opts.Notifier,
		log:      opts.Logger.With().Str("component", "session").Logger(),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.nowF = now
	return t
}

// StartSession opens a new in-progress session for kioskID. An unknown kiosk is
// apperr.ErrInvalidReference.
func (t *Tracker) StartSession(ctx context.Context, kioskID string) (*domain.Session, error) {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "kiosk id is required")
	}
	d, err := retry.Do(ctx, t.policy, func(ctx context.Context) (*devicedomain.Device, error) {
		return t.kiosks.GetByKioskID(ctx, kioskID)
	})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.Wrap(apperr.ErrInvalidReference, "kiosk %s", kioskID)
	}
	s := &domain.Session{
		ID:        uuid.New().String(),
		KioskID:   kioskID,
		StartedAt: t.nowF(),
		Outcome:   domain.OutcomeInProgress,
	}
	if err := retry.ExecOnce(ctx, t.policy, func(ctx context.Context) error {
		return t.sessions.Create(ctx, s)
	}); err != nil {
		return nil, err
	}
	t.log.Info().Str("session_id", s.ID).Str("kiosk_id", kioskID).Msg("session started")
	return s, nil
}

// RecordEvent appends an event to an open session, bumping its event count and the flag the
// (category, action) pair maps to. Events for a closed session are dropped and reported as
// apperr.ErrInvalidState. Returns the updated session.
func (t *Tracker) RecordEvent(ctx context.Context, sessionID string, in EventInput) (*domain.Session, error) {
	category := strings.TrimSpace(in.Category)
	action := strings.TrimSpace(in.Action)
	if category == "" || action == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "category and action are required")
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = t.nowF()
	}
	e := &domain.Event{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Category:   category,
		Action:     action,
		Details:    in.Details,
		OccurredAt: occurredAt.UTC(),
	}
	flag := domain.FlagFor(category, action)
	s, err := retry.Once(ctx, t.policy, func(ctx context.Context) (*domain.Session, error) {
		return t.sessions.AppendEvent(ctx, e, flag)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidState) {
			t.metrics.DroppedEvent(ctx)
			t.log.Warn().Str("session_id", sessionID).Str("category", category).Str("action", action).
				Msg("event for closed session dropped")
		}
		return nil, err
	}
	t.metrics.SessionEvent(ctx, category)
	telemetry.EmitAsync(t.emitter, t.log, &telemetrydomain.SessionEvent{
		EventID:    e.ID,
		SessionID:  s.ID,
		KioskID:    s.KioskID,
		Category:   category,
		Action:     action,
		Flag:       string(flag),
		Details:    e.Details,
		OccurredAt: e.OccurredAt,
	})
	return s, nil
}

// EndSession closes an open session with a terminal outcome. endedAt defaults to now.
func (t *Tracker) EndSession(ctx context.Context, sessionID string, outcome domain.Outcome, endedAt time.Time) (*domain.Session, error) {
	if !outcome.Valid() {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "unknown outcome %q", outcome)
	}
	if outcome == domain.OutcomeInProgress {
		return nil, apperr.Wrap(apperr.ErrInvalidState, "a session cannot end as %s", outcome)
	}
	s, err := t.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.Open() {
		return nil, apperr.Wrap(apperr.ErrInvalidState, "session %s already ended as %s", sessionID, s.Outcome)
	}
	if endedAt.IsZero() {
		endedAt = t.nowF()
	}
	endedAt = endedAt.UTC()
	closed, err := t.close(ctx, s, outcome, endedAt)
	if err != nil {
		return nil, err
	}
	t.log.Info().Str("session_id", sessionID).Str("outcome", string(outcome)).Int64("duration_seconds", *closed.DurationSeconds).Msg("session ended")
	return closed, nil
}

// ReapStaleSessions closes every session open longer than ceiling as abandoned, with
// endedAt = min(startedAt+ceiling, now). Sessions closed concurrently are skipped, so running it
// twice is harmless. Returns the number of sessions closed.
func (t *Tracker) ReapStaleSessions(ctx context.Context, ceiling time.Duration) (int, error) {
	if ceiling <= 0 {
		return 0, apperr.Wrap(apperr.ErrInvalidArgument, "ceiling must be positive")
	}
	now := t.nowF()
	cutoff := now.Add(-ceiling)
	reaped := 0
	defer func() {
		if reaped > 0 {
			t.metrics.SessionsReaped(ctx, reaped)
			t.log.Info().Int("count", reaped).Msg("stale sessions reaped")
		}
	}()
	for {
		batch, err := retry.Do(ctx, t.policy, func(ctx context.Context) ([]*domain.Session, error) {
			return t.sessions.ListOpenStartedBefore(ctx, cutoff, reapBatch)
		})
		if err != nil {
			return reaped, err
		}
		closedInBatch := 0
		for _, s := range batch {
			endedAt := s.StartedAt.Add(ceiling)
			if endedAt.After(now) {
				endedAt = now
			}
			if _, err := t.close(ctx, s, domain.OutcomeAbandoned, endedAt); err != nil {
				if errors.Is(err, apperr.ErrInvalidState) {
					continue
				}
				return reaped, err
			}
			reaped++
			closedInBatch++
		}
		if len(batch) < reapBatch || closedInBatch == 0 {
			return reaped, nil
		}
	}
}

// GetSession returns the session or apperr.ErrNotFound.
func (t *Tracker) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := retry.Do(ctx, t.policy, func(ctx context.Context) (*domain.Session, error) {
		return t.sessions.GetByID(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperr.Wrap(apperr.ErrNotFound, "session %s", sessionID)
	}
	return s, nil
}

// ListEvents returns the session's events ordered by occurrence.
func (t *Tracker) ListEvents(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	if _, err := t.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return retry.Do(ctx, t.policy, func(ctx context.Context) ([]*domain.Event, error) {
		return t.sessions.ListEvents(ctx, sessionID)
	})
}

// ListSessions returns sessions matching f ordered by start time.
func (t *Tracker) ListSessions(ctx context.Context, f repository.Filter) ([]*domain.Session, error) {
	if f.StartedFrom != nil && f.StartedTo != nil && !f.StartedTo.After(*f.StartedFrom) {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "startedTo must be after startedFrom")
	}
	return retry.Do(ctx, t.policy, func(ctx context.Context) ([]*domain.Session, error) {
		return t.sessions.List(ctx, f)
	})
}

// ReplaySession folds the session's event log and compares it with the stored aggregates.
func (t *Tracker) ReplaySession(ctx context.Context, sessionID string) (*ReplayResult, error) {
	s, err := t.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := retry.Do(ctx, t.policy, func(ctx context.Context) ([]*domain.Event, error) {
		return t.sessions.ListEvents(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	flags, n := domain.Replay(events)
	res := &ReplayResult{Stored: s.Flags, StoredEvents: s.TotalEvents, Replayed: flags, ReplayedEvents: n}
	if !res.Consistent() {
		t.log.Error().Str("session_id", sessionID).Int64("stored_events", s.TotalEvents).Int64("replayed_events", n).
			Msg("session aggregates diverge from event log")
	}
	return res, nil
}

// close is single-attempt: the repository's conditional update makes a lost retry observable as
// ErrInvalidState rather than a double close.
func (t *Tracker) close(ctx context.Context, s *domain.Session, outcome domain.Outcome, endedAt time.Time) (*domain.Session, error) {
	duration := domain.DurationSeconds(s.StartedAt, endedAt)
	closed, err := retry.Once(ctx, t.policy, func(ctx context.Context) (*domain.Session, error) {
		return t.sessions.Close(ctx, s.ID, outcome, endedAt, duration)
	})
	if err != nil {
		return nil, err
	}
	t.metrics.SessionClosed(ctx, string(outcome), duration)
	if t.notifier != nil {
		t.notifier.SessionClosed(ctx, closed)
	}
	return closed, nil
}
