package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	adminv1 "kiosk-engine/api/admin/v1"
	"kiosk-engine/internal/apperr"
	auditrepo "kiosk-engine/internal/audit/repository"
	"kiosk-engine/internal/presence"
	"kiosk-engine/internal/render"
	"kiosk-engine/internal/session/aggregate"
	"kiosk-engine/internal/session/repository"
	"kiosk-engine/internal/session/service"
)

var _ adminv1.AdminServiceServer = (*Server)(nil)

// Server implements AdminService for fleet operators: reporting, presence and kiosk provisioning.
// Proto: admin/v1 → internal/admin/handler.
type Server struct {
	tracker     *service.Tracker
	monitor     *presence.Monitor
	reapCeiling time.Duration
	auditLog    auditrepo.Repository
	log         zerolog.Logger
}

// maxReapCeiling bounds ReapStaleSessions.ceilingSeconds well below the time.Duration range.
const maxReapCeiling = 365 * 24 * time.Hour

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// NewServer returns a new Admin gRPC server. reapCeiling is used by ReapStaleSessions when the
// request does not carry ceilingSeconds.
func NewServer(tracker *service.Tracker, monitor *presence.Monitor, reapCeiling time.Duration, log zerolog.Logger) *Server {
	return &Server{
		tracker:     tracker,
		monitor:     monitor,
		reapCeiling: reapCeiling,
		log:         log.With().Str("component", "admin").Logger(),
	}
}

// WithAuditLog enables ListAuditLog over r.
func (s *Server) WithAuditLog(r auditrepo.Repository) *Server {
	s.auditLog = r
	return s
}

// Summarize rolls up the sessions matching the optional kiosk and start-time window.
func (s *Server) Summarize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var f repository.Filter
	f.KioskID = stringField(req, "kioskId")
	from, err := timeField(req, "startedFrom")
	if err != nil {
		return nil, err
	}
	to, err := timeField(req, "startedTo")
	if err != nil {
		return nil, err
	}
	f.StartedFrom, f.StartedTo = from, to

	sessions, err := s.tracker.ListSessions(ctx, f)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(render.Summary(aggregate.Summarize(sessions)))
}

// ListFleetPresence returns every kiosk with its presence.
func (s *Server) ListFleetPresence(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rows, err := s.monitor.Fleet(ctx)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(map[string]any{"kiosks": render.Fleet(rows)})
}

func (s *Server) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredField(req, "sessionId")
	if err != nil {
		return nil, err
	}
	sess, err := s.tracker.GetSession(ctx, id)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(render.Session(sess))
}

func (s *Server) ListSessionEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredField(req, "sessionId")
	if err != nil {
		return nil, err
	}
	events, err := s.tracker.ListEvents(ctx, id)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(map[string]any{"events": render.Events(events)})
}

// ReplaySession reports whether the stored flags and event count match a replay of the event log.
func (s *Server) ReplaySession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredField(req, "sessionId")
	if err != nil {
		return nil, err
	}
	res, err := s.tracker.ReplaySession(ctx, id)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(map[string]any{
		"consistent":     res.Consistent(),
		"storedFlags":    render.Flags(res.Stored),
		"storedEvents":   res.StoredEvents,
		"replayedFlags":  render.Flags(res.Replayed),
		"replayedEvents": res.ReplayedEvents,
	})
}

func (s *Server) ReapStaleSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ceiling := s.reapCeiling
	if v, ok := req.GetFields()["ceilingSeconds"]; ok {
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum || !(n.NumberValue > 0 && n.NumberValue <= maxReapCeiling.Seconds()) {
			return nil, status.Errorf(codes.InvalidArgument, "ceilingSeconds must be a positive number of at most %d", int64(maxReapCeiling.Seconds()))
		}
		ceiling = time.Duration(n.NumberValue * float64(time.Second))
	}
	reaped, err := s.tracker.ReapStaleSessions(ctx, ceiling)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(map[string]any{"reaped": int64(reaped)})
}

func (s *Server) RegisterKiosk(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kioskID, err := requiredField(req, "kioskId")
	if err != nil {
		return nil, err
	}
	d, err := s.monitor.Register(ctx, kioskID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(render.Device(d))
}

func (s *Server) SetKioskActive(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	kioskID, err := requiredField(req, "kioskId")
	if err != nil {
		return nil, err
	}
	v, ok := req.GetFields()["active"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "active is required")
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "active must be a boolean")
	}
	if err := s.monitor.SetActive(ctx, kioskID, b.BoolValue); err != nil {
		return nil, s.toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

// ListAuditLog returns the newest admin audit entries. limit defaults to 100 and is capped at 1000.
func (s *Server) ListAuditLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.auditLog == nil {
		return nil, status.Error(codes.FailedPrecondition, "audit log not configured")
	}
	limit := defaultAuditLimit
	if v, ok := req.GetFields()["limit"]; ok {
		n, isNum := v.GetKind().(*structpb.Value_NumberValue)
		if !isNum || n.NumberValue < 1 {
			return nil, status.Error(codes.InvalidArgument, "limit must be a positive number")
		}
		limit = min(int(n.NumberValue), maxAuditLimit)
	}
	entries, err := s.auditLog.List(ctx, limit)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.reply(map[string]any{"entries": render.AuditLog(entries)})
}

func (s *Server) reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		s.log.Error().Err(err).Msg("encode response")
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// toStatus maps apperr kinds to gRPC codes. Unknown errors are logged and hidden behind Internal.
func (s *Server) toStatus(err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, apperr.ErrInvalidArgument), errors.Is(err, apperr.ErrInvalidReference):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrAlreadyCompleted), errors.Is(err, apperr.ErrExpired):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, apperr.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.log.Error().Err(err).Msg("admin request failed")
	return status.Error(codes.Internal, "internal error")
}

func stringField(req *structpb.Struct, name string) string {
	return strings.TrimSpace(req.GetFields()[name].GetStringValue())
}

func requiredField(req *structpb.Struct, name string) (string, error) {
	v := stringField(req, name)
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return v, nil
}

func timeField(req *structpb.Struct, name string) (*time.Time, error) {
	v := stringField(req, name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be an RFC 3339 time", name)
	}
	t = t.UTC()
	return &t, nil
}
