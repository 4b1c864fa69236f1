package server

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	adminv1 "kiosk-engine/api/admin/v1"
	adminhandler "kiosk-engine/internal/admin/handler"
	"kiosk-engine/internal/audit"
	auditrepo "kiosk-engine/internal/audit/repository"
	healthhandler "kiosk-engine/internal/health/handler"
	"kiosk-engine/internal/policy/engine"
	"kiosk-engine/internal/presence"
	"kiosk-engine/internal/security"
	"kiosk-engine/internal/server/interceptors"
	"kiosk-engine/internal/session/service"
)

// Deps holds the services behind the gRPC handlers.
type Deps struct {
	// Tracker and Monitor back AdminService. If either is nil, AdminService is not registered.
	Tracker *service.Tracker
	Monitor *presence.Monitor
	// ReapCeiling is the default ceiling of AdminService.ReapStaleSessions.
	ReapCeiling time.Duration
	// AuditLog records admin mutations and backs AdminService.ListAuditLog. Optional.
	AuditLog auditrepo.Repository
	// Health serves grpc.health.v1. If nil, a health server without readiness probes is used.
	Health *healthhandler.Server
	Logger zerolog.Logger
}

// Auth configures admin RPC authentication. A nil Verifier disables authentication and
// authorization (development only; config rejects it in production).
type Auth struct {
	Verifier   *security.Verifier
	Authorizer engine.Authorizer
}

// publicMethods skip authentication.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_List_FullMethodName:  true,
}

// auditedMethods are the admin mutations recorded in the audit log.
var auditedMethods = map[string]bool{
	adminv1.AdminService_RegisterKiosk_FullMethodName:     true,
	adminv1.AdminService_SetKioskActive_FullMethodName:    true,
	adminv1.AdminService_ReapStaleSessions_FullMethodName: true,
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - kiosk.admin.v1.AdminService → internal/admin/handler
//   - grpc.health.v1.Health       → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	if deps.Tracker != nil && deps.Monitor != nil {
		admin := adminhandler.NewServer(deps.Tracker, deps.Monitor, deps.ReapCeiling, deps.Logger)
		if deps.AuditLog != nil {
			admin.WithAuditLog(deps.AuditLog)
		}
		adminv1.RegisterAdminServiceServer(s, admin)
	}
	h := deps.Health
	if h == nil {
		h = healthhandler.NewServer(nil, nil)
	}
	healthpb.RegisterHealthServer(s, h)
}

// NewGRPCServer returns a gRPC server with tracing, request logging, (when auth.Verifier is set)
// bearer authentication and policy checks, and (when deps.AuditLog is set) the admin audit trail.
// All services and reflection are registered.
func NewGRPCServer(deps Deps, auth Auth) *grpc.Server {
	unary := []grpc.UnaryServerInterceptor{interceptors.TelemetryUnary(deps.Logger, publicMethods)}
	if auth.Verifier != nil {
		unary = append(unary, interceptors.AuthUnary(auth.Verifier, auth.Authorizer, publicMethods, deps.Logger))
	} else {
		deps.Logger.Warn().Msg("admin gRPC authentication disabled")
	}
	if deps.AuditLog != nil {
		logger := audit.NewLogger(deps.AuditLog, interceptors.ClientIP, deps.Logger)
		unary = append(unary, interceptors.AuditUnary(logger, auditedMethods))
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
	)
	RegisterServices(s, deps)
	reflection.Register(s)
	return s
}
