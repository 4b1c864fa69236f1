package handler

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// checkTimeout bounds each readiness probe so a hung dependency reports NOT_SERVING instead of blocking.
const checkTimeout = 2 * time.Second

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the OPA evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health. Check runs live readiness probes for the overall
// service (""); named services use the statuses set on the embedded health.Server.
type Server struct {
	*health.Server
	pinger Pinger
	policy PolicyChecker
}

// NewServer returns a health server. pinger and policy may be nil, in which case that probe is skipped.
func NewServer(pinger Pinger, policy PolicyChecker) *Server {
	return &Server{Server: health.NewServer(), pinger: pinger, policy: policy}
}

// Check reports SERVING only if every configured probe succeeds. Probe failures are reported as
// NOT_SERVING, never as RPC errors.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" {
		return s.Server.Check(ctx, req)
	}
	if err := s.Ready(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// Ready runs the readiness probes and returns the first failure.
func (s *Server) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}
