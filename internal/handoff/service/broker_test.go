package service

import (
	"bytes"
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/blob"
	"kiosk-engine/internal/handoff/domain"
	"kiosk-engine/internal/handoff/repository"
	"kiosk-engine/internal/platform/retry"
	sessiondomain "kiosk-engine/internal/session/domain"
)

var now0 = time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)

type fakeSessions map[string]*sessiondomain.Session

func (f fakeSessions) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	return f[id], nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []domain.Status
}

func (n *recordingNotifier) HandoffChanged(ctx context.Context, h *domain.Handoff) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, h.Status)
}

type brokerFixture struct {
	broker   *Broker
	repo     *repository.MemoryRepository
	blobs    *blob.MemoryStore
	notifier *recordingNotifier
	mu       sync.Mutex
	now      time.Time
}

func (f *brokerFixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *brokerFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func newBrokerFixture(t *testing.T) *brokerFixture {
	t.Helper()
	ended := now0
	sessions := fakeSessions{
		"open":   {ID: "open", KioskID: "k1", Outcome: sessiondomain.OutcomeInProgress, StartedAt: now0},
		"closed": {ID: "closed", KioskID: "k1", Outcome: sessiondomain.OutcomeSentDigital, StartedAt: now0, EndedAt: &ended},
	}
	f := &brokerFixture{
		repo:     repository.NewMemoryRepository(nil),
		blobs:    blob.NewMemoryStore(),
		notifier: &recordingNotifier{},
		now:      now0,
	}
	f.broker = NewBroker(f.repo, sessions, Config{
		TTL:            10 * time.Minute,
		MaxSlots:       4,
		Retention:      time.Hour,
		BaseURL:        "https://kiosk.example.com/",
		InlineMaxBytes: 16,
	}, Options{
		Policy:   retry.Policy{Timeout: time.Second, MaxAttempts: 2, InitialInterval: time.Millisecond},
		Blobs:    f.blobs,
		Notifier: f.notifier,
		Logger:   zerolog.Nop(),
	}).WithClock(f.clock)
	return f
}

func png(n int) Upload {
	return Upload{ContentType: "image/png", Data: bytes.Repeat([]byte{0x89}, n)}
}

func TestCreateHandoff(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()

	issued, err := f.broker.CreateHandoff(ctx, 3, "open")
	require.NoError(t, err)
	h := issued.Handoff
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), h.Token)
	assert.Equal(t, "https://kiosk.example.com/handoff/"+h.Token, issued.URL)
	assert.Equal(t, domain.StatusPending, h.Status)
	assert.Equal(t, now0.Add(10*time.Minute), h.ExpiresAt)

	other, err := f.broker.CreateHandoff(ctx, 0, "open")
	require.NoError(t, err)
	assert.NotEqual(t, h.Token, other.Handoff.Token)

	testCases := []struct {
		name   string
		slot   int
		parent string
		want   error
	}{
		{"negative slot", -1, "open", apperr.ErrInvalidArgument},
		{"slot past max", 4, "open", apperr.ErrInvalidArgument},
		{"missing parent", 0, "", apperr.ErrInvalidArgument},
		{"unknown parent", 0, "ghost", apperr.ErrInvalidReference},
		{"closed parent", 0, "closed", apperr.ErrInvalidState},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.broker.CreateHandoff(ctx, tc.slot, tc.parent)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGetHandoff_LazyExpiry(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()

	_, err := f.broker.GetHandoff(ctx, "unknown")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	issued, err := f.broker.CreateHandoff(ctx, 0, "open")
	require.NoError(t, err)
	token := issued.Handoff.Token

	f.setNow(now0.Add(10 * time.Minute))
	h, err := f.broker.GetHandoff(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, h.Status)

	f.setNow(now0.Add(10*time.Minute + time.Second))
	h, err = f.broker.GetHandoff(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, h.Status)

	stored, err := f.repo.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, stored.Status)

	// Once observed expired it stays expired, even for a caller whose clock lags.
	f.setNow(now0)
	for i := 0; i < 3; i++ {
		h, err = f.broker.GetHandoff(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusExpired, h.Status)
	}
	_, err = f.broker.CompleteHandoff(ctx, token, png(4))
	assert.ErrorIs(t, err, apperr.ErrExpired)
}

func TestCompleteHandoff_ConcurrentSingleWinner(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	issued, err := f.broker.CreateHandoff(ctx, 1, "open")
	require.NoError(t, err)

	const callers = 10
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.broker.CompleteHandoff(ctx, issued.Handoff.Token, png(8))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyCompleted)
	}
	assert.Equal(t, 1, wins)

	h, err := f.broker.GetHandoff(ctx, issued.Handoff.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, h.Status)
}

func TestCompleteHandoff_IdempotencyKey(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	issued, err := f.broker.CreateHandoff(ctx, 1, "open")
	require.NoError(t, err)
	token := issued.Handoff.Token

	up := png(64)
	up.IdempotencyKey = "upload-1"
	first, err := f.broker.CompleteHandoff(ctx, token, up)
	require.NoError(t, err)
	require.NotNil(t, first.Image)
	assert.NotEmpty(t, first.Image.BlobKey)

	second, err := f.broker.CompleteHandoff(ctx, token, up)
	require.NoError(t, err)
	assert.Equal(t, first.Image.BlobKey, second.Image.BlobKey)
	assert.Equal(t, 1, f.blobs.Len())

	other := png(4)
	other.IdempotencyKey = "upload-2"
	_, err = f.broker.CompleteHandoff(ctx, token, other)
	assert.ErrorIs(t, err, apperr.ErrAlreadyCompleted)
	_, err = f.broker.CompleteHandoff(ctx, token, png(4))
	assert.ErrorIs(t, err, apperr.ErrAlreadyCompleted)
}

func TestCompleteHandoff_Errors(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()

	_, err := f.broker.CompleteHandoff(ctx, "unknown", png(4))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	issued, err := f.broker.CreateHandoff(ctx, 2, "open")
	require.NoError(t, err)
	token := issued.Handoff.Token

	_, err = f.broker.CompleteHandoff(ctx, token, Upload{ContentType: "image/png"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	f.setNow(issued.Handoff.ExpiresAt.Add(time.Millisecond))
	_, err = f.broker.CompleteHandoff(ctx, token, png(64))
	assert.ErrorIs(t, err, apperr.ErrExpired)
	assert.Zero(t, f.blobs.Len())

	stored, err := f.repo.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, stored.Status)
}

// completeBeforeExpire lands a completion between a reader's load and its expiry write-back.
type completeBeforeExpire struct {
	*repository.MemoryRepository
	completeAt time.Time
}

func (r *completeBeforeExpire) MarkExpired(ctx context.Context, token string, now time.Time) (bool, error) {
	img := &domain.Image{ContentType: "image/png", Inline: []byte("late"), Size: 4}
	if _, err := r.Complete(ctx, token, img, "", r.completeAt); err != nil {
		return false, err
	}
	return r.MemoryRepository.MarkExpired(ctx, token, now)
}

func TestGetHandoff_CompletionWinsExpiryRace(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	issued, err := f.broker.CreateHandoff(ctx, 0, "open")
	require.NoError(t, err)
	token := issued.Handoff.Token
	f.broker.repo = &completeBeforeExpire{MemoryRepository: f.repo, completeAt: issued.Handoff.ExpiresAt}

	f.setNow(issued.Handoff.ExpiresAt.Add(time.Second))
	first, err := f.broker.GetHandoff(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, first.Status)
	require.NotNil(t, first.Image)
	assert.Equal(t, "image/png", first.Image.ContentType)

	f.broker.repo = f.repo
	second, err := f.broker.GetHandoff(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Empty(t, f.notifier.statuses, "a lost expiry write publishes no change")
}

func TestCompleteHandoff_AtExpiryInstant(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()
	issued, err := f.broker.CreateHandoff(ctx, 0, "open")
	require.NoError(t, err)

	f.setNow(issued.Handoff.ExpiresAt)
	h, err := f.broker.CompleteHandoff(ctx, issued.Handoff.Token, png(4))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, h.Status)
	assert.Equal(t, []domain.Status{domain.StatusCompleted}, f.notifier.statuses)
}

func TestGetHandoffImage(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()

	small, err := f.broker.CreateHandoff(ctx, 0, "open")
	require.NoError(t, err)
	_, err = f.broker.GetHandoffImage(ctx, small.Handoff.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.broker.CompleteHandoff(ctx, small.Handoff.Token, png(8))
	require.NoError(t, err)
	img, err := f.broker.GetHandoffImage(ctx, small.Handoff.Token)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Len(t, img.Data, 8)
	assert.Zero(t, f.blobs.Len())

	large, err := f.broker.CreateHandoff(ctx, 1, "open")
	require.NoError(t, err)
	_, err = f.broker.CompleteHandoff(ctx, large.Handoff.Token, png(1024))
	require.NoError(t, err)
	assert.Equal(t, 1, f.blobs.Len())
	img, err = f.broker.GetHandoffImage(ctx, large.Handoff.Token)
	require.NoError(t, err)
	assert.Len(t, img.Data, 1024)

	require.NoError(t, f.broker.DeleteHandoff(ctx, large.Handoff.Token))
	require.NoError(t, f.broker.DeleteHandoff(ctx, large.Handoff.Token))
	assert.Zero(t, f.blobs.Len())
	_, err = f.broker.GetHandoff(ctx, large.Handoff.Token)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSweep(t *testing.T) {
	f := newBrokerFixture(t)
	ctx := context.Background()

	old, err := f.broker.CreateHandoff(ctx, 0, "open")
	require.NoError(t, err)
	_, err = f.broker.CompleteHandoff(ctx, old.Handoff.Token, png(512))
	require.NoError(t, err)
	_, err = f.broker.CreateHandoff(ctx, 1, "open")
	require.NoError(t, err)

	f.setNow(now0.Add(2 * time.Hour))
	fresh, err := f.broker.CreateHandoff(ctx, 2, "open")
	require.NoError(t, err)

	f.setNow(now0.Add(10*time.Minute + 30*time.Minute))
	n, err := f.broker.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "records inside the retention window are kept")

	f.setNow(now0.Add(2*time.Hour + time.Minute))
	n, err = f.broker.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, f.blobs.Len())

	_, err = f.broker.GetHandoff(ctx, fresh.Handoff.Token)
	assert.NoError(t, err)
	_, err = f.broker.GetHandoff(ctx, old.Handoff.Token)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
