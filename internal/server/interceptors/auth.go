package interceptors

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"kiosk-engine/internal/policy/engine"
	"kiosk-engine/internal/security"
)

const bearerPrefix = "bearer "

// AuthUnary returns a unary server interceptor that verifies the Bearer token from gRPC metadata,
// asks authz whether the principal may call the method and puts the principal in context.
// publicMethods is the set of full method names that skip both steps (e.g. health checks).
func AuthUnary(verifier *security.Verifier, authz engine.Authorizer, publicMethods map[string]bool, log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		token := extractBearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		p, err := verifier.Verify(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		allowed, err := authz.Allow(ctx, engine.Request{Subject: p.Subject, Role: p.Role, Method: methodName(info.FullMethod)})
		if err != nil {
			log.Error().Err(err).Str("method", info.FullMethod).Msg("authorization policy failed")
			return nil, status.Error(codes.Internal, "authorization unavailable")
		}
		if !allowed {
			return nil, status.Errorf(codes.PermissionDenied, "role %q may not call %s", p.Role, methodName(info.FullMethod))
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
