package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"kiosk-engine/internal/security"
)

type contextKey struct{ name string }

var principalKey = contextKey{"principal"}

// WithPrincipal returns a context carrying the verified caller.
func WithPrincipal(ctx context.Context, p *security.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the verified caller and true if set; otherwise nil, false.
func GetPrincipal(ctx context.Context) (*security.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*security.Principal)
	return p, ok && p != nil
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// methodName returns the last element of a full gRPC method name ("/pkg.Service/Method" -> "Method").
func methodName(fullMethod string) string {
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		return fullMethod[i+1:]
	}
	return fullMethod
}
