// Package service brokers QR handoffs: a kiosk opens a short-lived token for one slot of its
// session and a phone completes it with an image.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/blob"
	"kiosk-engine/internal/handoff/domain"
	"kiosk-engine/internal/handoff/repository"
	"kiosk-engine/internal/platform/retry"
	sessiondomain "kiosk-engine/internal/session/domain"
	"kiosk-engine/internal/telemetry"
)

const (
	tokenBytes = 16
	sweepBatch = 100
)

// Completion results recorded on the kiosk.handoff.completions counter.
const (
	resultCompleted        = "completed"
	resultReplayed         = "replayed"
	resultExpired          = "expired"
	resultAlreadyCompleted = "already_completed"
	resultNotFound         = "not_found"
	resultError            = "error"
)

// SessionLookup resolves the parent session of a handoff (nil if unknown).
type SessionLookup interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
}

// HandoffNotifier is told when a handoff changes state. Best-effort.
type HandoffNotifier interface {
	HandoffChanged(ctx context.Context, h *domain.Handoff)
}

// Config holds broker policy.
type Config struct {
	TTL      time.Duration
	MaxSlots int
	// Retention is how long past expiry a record survives before Sweep deletes it.
	Retention time.Duration
	// BaseURL prefixes the QR URL; the token is appended as /handoff/<token>.
	BaseURL string
	// InlineMaxBytes is the largest image kept on the record when a blob store is configured.
	InlineMaxBytes int64
}

// Options holds optional collaborators. Without Blobs every image is stored inline.
type Options struct {
	Policy   retry.Policy
	Blobs    blob.Store
	Notifier HandoffNotifier
	Metrics  *telemetry.Metrics
	Logger   zerolog.Logger
}

// Upload is the image a phone sends to complete a handoff.
type Upload struct {
	ContentType string
	Data        []byte
	// IdempotencyKey makes a retried upload succeed with the original result instead of
	// failing with apperr.ErrAlreadyCompleted.
	IdempotencyKey string
}

// Issued is a newly created handoff and the URL to encode in its QR code.
type Issued struct {
	Handoff *domain.Handoff
	URL     string
}

// Broker implements the handoff lifecycle over a Repository. It holds no handoff state itself.
type Broker struct {
	repo     repository.Repository
	sessions SessionLookup
	cfg      Config
	policy   retry.Policy
	blobs    blob.Store
	notifier HandoffNotifier
	metrics  *telemetry.Metrics
	log      zerolog.Logger
	nowF     func() time.Time
}

// NewBroker returns a Broker. sessions may be nil to skip parent validation.
func NewBroker(repo repository.Repository, sessions SessionLookup, cfg Config, opts Options) *Broker {
	return &Broker{
		repo:     repo,
		sessions: sessions,
		cfg:      cfg,
		policy:   opts.Policy,
		blobs:    opts.Blobs,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		log:      opts.Logger.With().Str("component", "handoff").Logger(),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source. Used by tests.
func (b *Broker) WithClock(now func() time.Time) *Broker {
	b.nowF = now
	return b
}

// CreateHandoff opens a pending handoff for slotIndex of an open parent session.
func (b *Broker) CreateHandoff(ctx context.Context, slotIndex int, parentSessionID string) (*Issued, error) {
	if slotIndex < 0 || slotIndex >= b.cfg.MaxSlots {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "slot %d outside 0..%d", slotIndex, b.cfg.MaxSlots-1)
	}
	parentSessionID = strings.TrimSpace(parentSessionID)
	if parentSessionID == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "parent session id is required")
	}
	if b.sessions != nil {
		s, err := retry.Do(ctx, b.policy, func(ctx context.Context) (*sessiondomain.Session, error) {
			return b.sessions.GetByID(ctx, parentSessionID)
		})
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, apperr.Wrap(apperr.ErrInvalidReference, "session %s", parentSessionID)
		}
		if !s.Open() {
			return nil, apperr.Wrap(apperr.ErrInvalidState, "session %s already ended", parentSessionID)
		}
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := b.nowF()
	h := &domain.Handoff{
		Token:           token,
		SlotIndex:       slotIndex,
		ParentSessionID: parentSessionID,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(b.cfg.TTL),
	}
	if err := retry.ExecOnce(ctx, b.policy, func(ctx context.Context) error {
		return b.repo.Create(ctx, h)
	}); err != nil {
		return nil, err
	}
	b.log.Info().Str("token", token).Str("session_id", parentSessionID).Int("slot", slotIndex).Msg("handoff created")
	return &Issued{Handoff: h, URL: b.URL(token)}, nil
}

// URL returns the phone-facing URL for token.
func (b *Broker) URL(token string) string {
	return strings.TrimRight(b.cfg.BaseURL, "/") + "/handoff/" + token
}

// GetHandoff returns the handoff as observed now. A pending handoff past its expiry is written back
// as expired and returned expired; it never reads as pending again.
func (b *Broker) GetHandoff(ctx context.Context, token string) (*domain.Handoff, error) {
	h, err := b.load(ctx, token)
	if err != nil {
		return nil, err
	}
	now := b.nowF()
	if h.Status == domain.StatusPending && h.PastExpiry(now) {
		b.expire(ctx, h, now)
	}
	return h, nil
}

// CompleteHandoff attaches the upload to a pending handoff. Exactly one of any number of concurrent
// calls succeeds; the others get apperr.ErrAlreadyCompleted, unless they carry the winner's
// idempotency key, in which case they get the winner's result.
func (b *Broker) CompleteHandoff(ctx context.Context, token string, up Upload) (*domain.Handoff, error) {
	h, replayed, err := b.completeHandoff(ctx, token, up)
	b.metrics.HandoffCompletion(ctx, completionResult(err, replayed))
	return h, err
}

func (b *Broker) completeHandoff(ctx context.Context, token string, up Upload) (*domain.Handoff, bool, error) {
	if up.ContentType == "" || len(up.Data) == 0 {
		return nil, false, apperr.Wrap(apperr.ErrInvalidArgument, "image content type and data are required")
	}
	h, err := b.load(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if replay, ok := replayOf(h, up.IdempotencyKey); ok {
		return replay, true, nil
	}
	if err := b.checkCompletable(ctx, h); err != nil {
		return nil, false, err
	}

	img := &domain.Image{ContentType: up.ContentType, Size: int64(len(up.Data))}
	if b.blobs != nil && img.Size > b.cfg.InlineMaxBytes {
		img.BlobKey = fmt.Sprintf("handoff/%s/%s", token, uuid.New().String())
		if err := retry.Exec(ctx, b.policy, func(ctx context.Context) error {
			return b.blobs.Put(ctx, img.BlobKey, up.Data)
		}); err != nil {
			return nil, false, err
		}
	} else {
		img.Inline = up.Data
	}

	// Uploads can be slow; the expiry check in Complete uses the time the upload finished.
	done, err := b.commit(ctx, token, img, up.IdempotencyKey)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyCompleted) {
			if h, lerr := b.load(ctx, token); lerr == nil {
				if replay, ok := replayOf(h, up.IdempotencyKey); ok {
					if replay.Image == nil || replay.Image.BlobKey != img.BlobKey {
						b.discardBlob(ctx, img)
					}
					return replay, true, nil
				}
			}
		}
		b.discardBlob(ctx, img)
		if errors.Is(err, apperr.ErrExpired) {
			b.expire(ctx, h, b.nowF())
		}
		return nil, false, err
	}
	b.log.Info().Str("token", token).Int64("size", img.Size).Bool("blob", img.BlobKey != "").Msg("handoff completed")
	if b.notifier != nil {
		b.notifier.HandoffChanged(ctx, done)
	}
	return done, false, nil
}

// commit retries only when the upload carries an idempotency key; a retry after a lost response
// then resolves through the replay check instead of reporting a spurious conflict.
func (b *Broker) commit(ctx context.Context, token string, img *domain.Image, key string) (*domain.Handoff, error) {
	op := func(ctx context.Context) (*domain.Handoff, error) {
		return b.repo.Complete(ctx, token, img, key, b.nowF())
	}
	if key == "" {
		return retry.Once(ctx, b.policy, op)
	}
	return retry.Do(ctx, b.policy, op)
}

func (b *Broker) checkCompletable(ctx context.Context, h *domain.Handoff) error {
	now := b.nowF()
	switch h.EffectiveStatus(now) {
	case domain.StatusCompleted:
		return apperr.Wrap(apperr.ErrAlreadyCompleted, "handoff %s", h.Token)
	case domain.StatusExpired:
		if h.Status == domain.StatusPending {
			b.expire(ctx, h, now)
		}
		return apperr.Wrap(apperr.ErrExpired, "handoff %s", h.Token)
	}
	return nil
}

// Image is the payload of a completed handoff.
type Image struct {
	ContentType string
	Data        []byte
}

// GetHandoffImage returns the uploaded image of a completed handoff.
func (b *Broker) GetHandoffImage(ctx context.Context, token string) (*Image, error) {
	h, err := b.GetHandoff(ctx, token)
	if err != nil {
		return nil, err
	}
	switch h.Status {
	case domain.StatusExpired:
		return nil, apperr.Wrap(apperr.ErrExpired, "handoff %s", token)
	case domain.StatusPending:
		return nil, apperr.Wrap(apperr.ErrInvalidState, "handoff %s has no image yet", token)
	}
	if h.Image == nil {
		return nil, apperr.Wrap(apperr.ErrNotFound, "handoff %s image", token)
	}
	if h.Image.BlobKey == "" {
		return &Image{ContentType: h.Image.ContentType, Data: h.Image.Inline}, nil
	}
	if b.blobs == nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "blob store not configured")
	}
	data, err := retry.Do(ctx, b.policy, func(ctx context.Context) ([]byte, error) {
		return b.blobs.Get(ctx, h.Image.BlobKey)
	})
	if err != nil {
		return nil, err
	}
	return &Image{ContentType: h.Image.ContentType, Data: data}, nil
}

// DeleteHandoff cancels a handoff. Deleting an unknown or already deleted token succeeds.
func (b *Broker) DeleteHandoff(ctx context.Context, token string) error {
	h, err := retry.Do(ctx, b.policy, func(ctx context.Context) (*domain.Handoff, error) {
		return b.repo.Delete(ctx, token)
	})
	if err != nil {
		return err
	}
	if h != nil {
		b.discardBlob(ctx, h.Image)
		b.log.Info().Str("token", token).Msg("handoff deleted")
	}
	return nil
}

// Sweep deletes handoffs that expired more than the retention window ago, with their blobs.
// Returns the number of records deleted.
func (b *Broker) Sweep(ctx context.Context) (int, error) {
	cutoff := b.nowF().Add(-b.cfg.Retention)
	deleted := 0
	for {
		batch, err := retry.Once(ctx, b.policy, func(ctx context.Context) ([]*domain.Handoff, error) {
			return b.repo.DeleteExpiredBefore(ctx, cutoff, sweepBatch)
		})
		if err != nil {
			return deleted, err
		}
		for _, h := range batch {
			b.discardBlob(ctx, h.Image)
		}
		deleted += len(batch)
		if len(batch) < sweepBatch {
			if deleted > 0 {
				b.log.Info().Int("count", deleted).Msg("expired handoffs swept")
			}
			return deleted, nil
		}
	}
}

func (b *Broker) load(ctx context.Context, token string) (*domain.Handoff, error) {
	h, err := retry.Do(ctx, b.policy, func(ctx context.Context) (*domain.Handoff, error) {
		return b.repo.Get(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.Wrap(apperr.ErrNotFound, "handoff %s", token)
	}
	return h, nil
}

// expire writes back the expired status and updates h. When the write matches nothing, another
// caller changed the record first (typically a completion that landed before expiry), and h takes
// the stored state instead. A failed write leaves the record pending in storage; readers still
// observe it expired because expiry is derived from expires_at.
func (b *Broker) expire(ctx context.Context, h *domain.Handoff, now time.Time) {
	moved, err := retry.Do(ctx, b.policy, func(ctx context.Context) (bool, error) {
		return b.repo.MarkExpired(ctx, h.Token, now)
	})
	if err != nil {
		b.log.Warn().Err(err).Str("token", h.Token).Msg("persisting handoff expiry failed")
		h.Status = domain.StatusExpired
		return
	}
	if !moved {
		stored, err := b.load(ctx, h.Token)
		if err == nil && stored.Status != domain.StatusPending {
			*h = *stored
			return
		}
		h.Status = domain.StatusExpired
		return
	}
	h.Status = domain.StatusExpired
	if b.notifier != nil {
		b.notifier.HandoffChanged(ctx, h)
	}
}

// discardBlob removes an image's blob. A failure leaves an orphan object and is only logged.
func (b *Broker) discardBlob(ctx context.Context, img *domain.Image) {
	if b.blobs == nil || img == nil || img.BlobKey == "" {
		return
	}
	if err := retry.Exec(ctx, b.policy, func(ctx context.Context) error {
		return b.blobs.Delete(ctx, img.BlobKey)
	}); err != nil {
		b.log.Warn().Err(err).Str("blob_key", img.BlobKey).Msg("blob cleanup failed")
	}
}

// replayOf returns h when it was completed by an upload with the same non-empty idempotency key.
func replayOf(h *domain.Handoff, key string) (*domain.Handoff, bool) {
	if key != "" && h.Status == domain.StatusCompleted && h.IdempotencyKey == key {
		return h, true
	}
	return nil, false
}

func completionResult(err error, replayed bool) string {
	switch {
	case err == nil && replayed:
		return resultReplayed
	case err == nil:
		return resultCompleted
	case errors.Is(err, apperr.ErrExpired):
		return resultExpired
	case errors.Is(err, apperr.ErrAlreadyCompleted):
		return resultAlreadyCompleted
	case errors.Is(err, apperr.ErrNotFound):
		return resultNotFound
	}
	return resultError
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("handoff token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
