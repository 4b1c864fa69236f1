// Package audit records admin mutations (kiosk provisioning, reaper runs) in a durable audit log.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kiosk-engine/internal/audit/domain"
	auditrepo "kiosk-engine/internal/audit/repository"
)

// AnonymousSubject is recorded when a call carries no authenticated principal (auth disabled).
const AnonymousSubject = "_anonymous"

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, subject, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         zerolog.Logger
	nowF        func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log zerolog.Logger) *Logger {
	return &Logger{
		repo:        repo,
		ipExtractor: ipExtractor,
		log:         log.With().Str("component", "audit").Logger(),
		nowF:        time.Now,
	}
}

// WithClock replaces the time source.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.nowF = now
	return l
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, subject, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if subject == "" {
		subject = AnonymousSubject
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		Subject:   subject,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.nowF().UTC(),
	}
	// The caller's context may already be cancelled once the RPC has returned.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn().Err(err).Str("action", action).Str("resource", resource).Msg("failed to write audit entry")
	}
}
