package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/session/domain"
)

// KioskChecker reports whether a kiosk exists. The memory repository uses it in place of a foreign key.
type KioskChecker func(ctx context.Context, kioskID string) (bool, error)

type sessionEntry struct {
	mu     sync.Mutex
	s      domain.Session
	events []*domain.Event
}

// MemoryRepository is an in-memory Repository for tests and local development.
// Writes to one session are serialized by that session's lock only.
type MemoryRepository struct {
	sessions    *xsync.Map[string, *sessionEntry]
	kioskExists KioskChecker
}

// NewMemoryRepository returns an empty repository. kioskExists may be nil to skip reference checks.
func NewMemoryRepository(kioskExists KioskChecker) *MemoryRepository {
	return &MemoryRepository{
		sessions:    xsync.NewMap[string, *sessionEntry](),
		kioskExists: kioskExists,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	if r.kioskExists != nil {
		ok, err := r.kioskExists(ctx, s.KioskID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Wrap(apperr.ErrInvalidReference, "kiosk %s", s.KioskID)
		}
	}
	if _, loaded := r.sessions.LoadOrStore(s.ID, &sessionEntry{s: copySession(s)}); loaded {
		return apperr.Wrap(apperr.ErrInvalidArgument, "session %s already exists", s.ID)
	}
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	e, ok := r.sessions.Load(id)
	if !ok {
		return nil, nil
	}
	return e.snapshot(), nil
}

func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]*domain.Session, error) {
	out := r.collect(f.Matches)
	sortByStart(out)
	return out, nil
}

func (r *MemoryRepository) ListOpenStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Session, error) {
	out := r.collect(func(s *domain.Session) bool {
		return s.Open() && s.StartedAt.Before(cutoff)
	})
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) HasOpenSession(ctx context.Context, kioskID string) (bool, error) {
	found := false
	r.sessions.Range(func(_ string, e *sessionEntry) bool {
		e.mu.Lock()
		found = e.s.KioskID == kioskID && e.s.Open()
		e.mu.Unlock()
		return !found
	})
	return found, nil
}

func (r *MemoryRepository) AppendEvent(ctx context.Context, ev *domain.Event, flag domain.Flag) (*domain.Session, error) {
	e, ok := r.sessions.Load(ev.SessionID)
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "session %s", ev.SessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.s.Open() {
		return nil, apperr.Wrap(apperr.ErrInvalidState, "session %s is closed", ev.SessionID)
	}
	stored := *ev
	stored.Details = copyDetails(ev.Details)
	e.events = append(e.events, &stored)
	e.s.TotalEvents++
	e.s.Flags.Set(flag)
	s := copySession(&e.s)
	return &s, nil
}

func (r *MemoryRepository) ListEvents(ctx context.Context, sessionID string) ([]*domain.Event, error) {
	e, ok := r.sessions.Load(sessionID)
	if !ok {
		return nil, nil
	}
	e.mu.Lock()
	out := make([]*domain.Event, len(e.events))
	for i, ev := range e.events {
		c := *ev
		c.Details = copyDetails(ev.Details)
		out[i] = &c
	}
	e.mu.Unlock()
	// Stable sort keeps append order for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (r *MemoryRepository) Close(ctx context.Context, id string, outcome domain.Outcome, endedAt time.Time, durationSeconds int64) (*domain.Session, error) {
	e, ok := r.sessions.Load(id)
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "session %s", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.s.Open() {
		return nil, apperr.Wrap(apperr.ErrInvalidState, "session %s is closed", id)
	}
	t := endedAt
	d := durationSeconds
	e.s.Outcome = outcome
	e.s.EndedAt = &t
	e.s.DurationSeconds = &d
	s := copySession(&e.s)
	return &s, nil
}

func (r *MemoryRepository) collect(keep func(*domain.Session) bool) []*domain.Session {
	var out []*domain.Session
	r.sessions.Range(func(_ string, e *sessionEntry) bool {
		if s := e.snapshot(); keep(s) {
			out = append(out, s)
		}
		return true
	})
	return out
}

func (e *sessionEntry) snapshot() *domain.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := copySession(&e.s)
	return &s
}

func sortByStart(list []*domain.Session) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.Before(list[j].StartedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func copySession(s *domain.Session) domain.Session {
	out := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	if s.DurationSeconds != nil {
		d := *s.DurationSeconds
		out.DurationSeconds = &d
	}
	return out
}

func copyDetails(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
