package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/session/domain"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newSession(id, kiosk string, started time.Time) *domain.Session {
	return &domain.Session{ID: id, KioskID: kiosk, StartedAt: started, Outcome: domain.OutcomeInProgress}
}

// testRepository runs behavior every Repository implementation must share. Kiosk "k1" and "k2" must exist.
func testRepository(t *testing.T, r Repository) {
	ctx := context.Background()

	t.Run("create requires kiosk", func(t *testing.T) {
		err := r.Create(ctx, newSession("s-orphan", "missing-kiosk", t0))
		require.ErrorIs(t, err, apperr.ErrInvalidReference)
	})

	require.NoError(t, r.Create(ctx, newSession("s1", "k1", t0)))
	require.NoError(t, r.Create(ctx, newSession("s2", "k1", t0.Add(time.Hour))))
	require.NoError(t, r.Create(ctx, newSession("s3", "k2", t0.Add(2*time.Hour))))

	t.Run("get", func(t *testing.T) {
		s, err := r.GetByID(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.True(t, s.Open())
		assert.Zero(t, s.TotalEvents)
		assert.Equal(t, domain.Flags{}, s.Flags)

		missing, err := r.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("append event", func(t *testing.T) {
		e := &domain.Event{ID: "e1", SessionID: "s1", Category: "search", Action: "query",
			Details: map[string]any{"q": "birthday"}, OccurredAt: t0.Add(time.Second)}
		s, err := r.AppendEvent(ctx, e, domain.FlagUsedSearch)
		require.NoError(t, err)
		assert.Equal(t, int64(1), s.TotalEvents)
		assert.Equal(t, "k1", s.KioskID)
		_, err = r.AppendEvent(ctx, &domain.Event{ID: "e0", SessionID: "s1", Category: "output",
			Action: "print", OccurredAt: t0}, "")
		require.NoError(t, err)

		s, err = r.GetByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), s.TotalEvents)
		assert.True(t, s.Flags.UsedSearch)

		events, err := r.ListEvents(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "e0", events[0].ID, "events are ordered by occurrence")
		assert.Equal(t, "birthday", events[1].Details["q"])

		_, err = r.AppendEvent(ctx, &domain.Event{ID: "ex", SessionID: "nope", Category: "search", Action: "q", OccurredAt: t0}, "")
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("concurrent appends are all counted", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				e := &domain.Event{ID: fmt.Sprintf("c%d", i), SessionID: "s2", Category: "card", Action: "browse",
					OccurredAt: t0.Add(time.Duration(i) * time.Millisecond)}
				_, err := r.AppendEvent(ctx, e, domain.FlagBrowsedGreetingCards)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()
		s, err := r.GetByID(ctx, "s2")
		require.NoError(t, err)
		assert.Equal(t, int64(20), s.TotalEvents)

		events, err := r.ListEvents(ctx, "s2")
		require.NoError(t, err)
		flags, n := domain.Replay(events)
		assert.Equal(t, s.Flags, flags)
		assert.Equal(t, s.TotalEvents, n)
	})

	t.Run("open sessions", func(t *testing.T) {
		open, err := r.HasOpenSession(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, open)
		open, err = r.HasOpenSession(ctx, "k-none")
		require.NoError(t, err)
		assert.False(t, open)

		stale, err := r.ListOpenStartedBefore(ctx, t0.Add(90*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 2)
		assert.Equal(t, "s1", stale[0].ID)

		limited, err := r.ListOpenStartedBefore(ctx, t0.Add(90*time.Minute), 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("close exactly once", func(t *testing.T) {
		ended := t0.Add(5 * time.Minute)
		s, err := r.Close(ctx, "s1", domain.OutcomePrintedCard, ended, 300)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomePrintedCard, s.Outcome)
		require.NotNil(t, s.EndedAt)
		assert.True(t, s.EndedAt.Equal(ended))
		require.NotNil(t, s.DurationSeconds)
		assert.Equal(t, int64(300), *s.DurationSeconds)

		_, err = r.Close(ctx, "s1", domain.OutcomeAbandoned, ended, 1)
		require.ErrorIs(t, err, apperr.ErrInvalidState)
		_, err = r.Close(ctx, "nope", domain.OutcomeAbandoned, ended, 1)
		require.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = r.AppendEvent(ctx, &domain.Event{ID: "late", SessionID: "s1", Category: "search", Action: "q", OccurredAt: ended}, domain.FlagUsedSearch)
		require.ErrorIs(t, err, apperr.ErrInvalidState)
		after, err := r.GetByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), after.TotalEvents, "closed sessions are immutable")
	})

	t.Run("list filter", func(t *testing.T) {
		all, err := r.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"s1", "s2", "s3"}, []string{all[0].ID, all[1].ID, all[2].ID})

		byKiosk, err := r.List(ctx, Filter{KioskID: "k1"})
		require.NoError(t, err)
		assert.Len(t, byKiosk, 2)

		from, to := t0.Add(time.Hour), t0.Add(2*time.Hour)
		window, err := r.List(ctx, Filter{StartedFrom: &from, StartedTo: &to})
		require.NoError(t, err)
		require.Len(t, window, 1)
		assert.Equal(t, "s2", window[0].ID)
	})
}
