package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/handoff/domain"
)

var t0 = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

func pending(token, parent string, expiresAt time.Time) *domain.Handoff {
	return &domain.Handoff{
		Token:           token,
		SlotIndex:       1,
		ParentSessionID: parent,
		Status:          domain.StatusPending,
		CreatedAt:       expiresAt.Add(-10 * time.Minute),
		ExpiresAt:       expiresAt,
	}
}

// testRepository runs the behavior every Repository must share. The store must know session "s1".
func testRepository(t *testing.T, r Repository) {
	ctx := context.Background()
	exp := t0.Add(10 * time.Minute)

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, pending("h1", "s1", exp)))
		h, err := r.Get(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Equal(t, domain.StatusPending, h.Status)
		assert.Equal(t, 1, h.SlotIndex)
		assert.Equal(t, exp, h.ExpiresAt)
		assert.Nil(t, h.Image)

		missing, err := r.Get(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("unknown parent", func(t *testing.T) {
		err := r.Create(ctx, pending("h-orphan", "no-such-session", exp))
		assert.ErrorIs(t, err, apperr.ErrInvalidReference)
	})

	t.Run("concurrent completion has one winner", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, pending("h2", "s1", exp)))
		var (
			wg        sync.WaitGroup
			winners   atomic.Int32
			completed atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Complete(ctx, "h2", &domain.Image{ContentType: "image/png", Inline: []byte("png"), Size: 3}, "", t0)
				switch {
				case err == nil:
					winners.Add(1)
				case assert.ErrorIs(t, err, apperr.ErrAlreadyCompleted):
					completed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
		assert.Equal(t, int32(7), completed.Load())

		h, err := r.Get(ctx, "h2")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, h.Status)
		require.NotNil(t, h.Image)
		assert.Equal(t, []byte("png"), h.Image.Inline)
		require.NotNil(t, h.CompletedAt)
	})

	t.Run("complete keeps blob reference and idempotency key", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, pending("h3", "s1", exp)))
		h, err := r.Complete(ctx, "h3", &domain.Image{ContentType: "image/jpeg", BlobKey: "handoff/h3/x", Size: 1 << 20}, "key-1", exp)
		require.NoError(t, err)
		assert.Equal(t, "key-1", h.IdempotencyKey)
		assert.Equal(t, "handoff/h3/x", h.Image.BlobKey)
		assert.Empty(t, h.Image.Inline)
		assert.Equal(t, int64(1<<20), h.Image.Size)
	})

	t.Run("complete after expiry", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, pending("h4", "s1", exp)))
		_, err := r.Complete(ctx, "h4", &domain.Image{ContentType: "image/png", Inline: []byte("x"), Size: 1}, "", exp.Add(time.Second))
		assert.ErrorIs(t, err, apperr.ErrExpired)

		moved, err := r.MarkExpired(ctx, "h4", exp.Add(time.Second))
		require.NoError(t, err)
		assert.True(t, moved)
		moved, err = r.MarkExpired(ctx, "h4", exp.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, moved)
		h, err := r.Get(ctx, "h4")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpired, h.Status)

		_, err = r.Complete(ctx, "h4", &domain.Image{ContentType: "image/png", Inline: []byte("x"), Size: 1}, "", t0)
		assert.ErrorIs(t, err, apperr.ErrExpired)

		_, err = r.Complete(ctx, "missing", &domain.Image{ContentType: "image/png", Inline: []byte("x"), Size: 1}, "", t0)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("mark expired leaves live and completed handoffs alone", func(t *testing.T) {
		for _, tc := range []struct {
			token string
			at    time.Time
		}{{"h1", t0}, {"h2", exp.Add(time.Hour)}, {"missing", t0}} {
			moved, err := r.MarkExpired(ctx, tc.token, tc.at)
			require.NoError(t, err)
			assert.False(t, moved, tc.token)
		}
		h, err := r.Get(ctx, "h1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, h.Status)
		h, err = r.Get(ctx, "h2")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, h.Status)
	})

	t.Run("delete", func(t *testing.T) {
		h, err := r.Delete(ctx, "h3")
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Equal(t, "handoff/h3/x", h.Image.BlobKey)

		h, err = r.Delete(ctx, "h3")
		require.NoError(t, err)
		assert.Nil(t, h)
	})

	t.Run("delete expired before", func(t *testing.T) {
		require.NoError(t, r.Create(ctx, pending("h-late", "s1", exp.Add(2*time.Hour))))
		deleted, err := r.DeleteExpiredBefore(ctx, exp.Add(time.Hour), 1)
		require.NoError(t, err)
		assert.Len(t, deleted, 1)

		deleted, err = r.DeleteExpiredBefore(ctx, exp.Add(time.Hour), 100)
		require.NoError(t, err)
		assert.Len(t, deleted, 2)

		h, err := r.Get(ctx, "h-late")
		require.NoError(t, err)
		assert.NotNil(t, h)
	})
}
