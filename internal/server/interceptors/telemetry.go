package interceptors

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TelemetryUnary returns a unary server interceptor that logs one line per RPC with its status and
// latency. skipMethods is the set of full method names to not log (e.g. health checks).
func TelemetryUnary(log zerolog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		ev := log.Info()
		if code == codes.Internal || code == codes.Unavailable || code == codes.Unknown {
			ev = log.Error().Err(err)
		}
		ev = ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Str("client_ip", ClientIP(ctx))
		if p, ok := GetPrincipal(ctx); ok {
			ev = ev.Str("subject", p.Subject)
		}
		ev.Msg("grpc request")
		return resp, err
	}
}
