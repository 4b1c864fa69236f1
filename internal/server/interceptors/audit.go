package interceptors

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"kiosk-engine/internal/audit"
)

// AuditUnary returns a unary server interceptor that records every call to one of methods in the
// audit log, successful or not, with the caller's subject and the request fields.
// It must run after AuthUnary so the principal is on the context.
func AuditUnary(logger audit.AuditLogger, methods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if logger == nil || !methods[info.FullMethod] {
			return resp, err
		}
		var subject string
		if p, ok := GetPrincipal(ctx); ok {
			subject = p.Subject
		}
		ar := audit.ParseFullMethod(info.FullMethod)
		logger.LogEvent(ctx, subject, ar.Action, ar.Resource, auditMetadata(req, err))
		return resp, err
	}
}

func auditMetadata(req any, err error) string {
	m := map[string]any{"code": status.Code(err).String()}
	if s, ok := req.(*structpb.Struct); ok && len(s.GetFields()) > 0 {
		m["request"] = s.AsMap()
	}
	b, mErr := json.Marshal(m)
	if mErr != nil {
		return ""
	}
	return string(b)
}
