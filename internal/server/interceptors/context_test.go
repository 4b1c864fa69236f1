package interceptors

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"kiosk-engine/internal/security"
)

func TestWithPrincipal(t *testing.T) {
	ctx := WithPrincipal(context.Background(), &security.Principal{Subject: "u1", Role: security.RoleAdmin})
	p, ok := GetPrincipal(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", p.Subject)
	assert.Equal(t, security.RoleAdmin, p.Role)
}

func TestGetPrincipal_NotSet(t *testing.T) {
	_, ok := GetPrincipal(context.Background())
	assert.False(t, ok, "not set")
	_, ok = GetPrincipal(WithPrincipal(context.Background(), nil))
	assert.False(t, ok, "nil principal")
}

func TestClientIP(t *testing.T) {
	peerCtx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 5555}})

	testCases := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"forwarded for", metadata.NewIncomingContext(peerCtx, metadata.Pairs("x-forwarded-for", "203.0.113.9, 10.0.0.1")), "203.0.113.9"},
		{"real ip", metadata.NewIncomingContext(peerCtx, metadata.Pairs("x-real-ip", "198.51.100.4")), "198.51.100.4"},
		{"peer", peerCtx, "10.0.0.7"},
		{"unknown", context.Background(), "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClientIP(tc.ctx))
		})
	}
}

func TestMethodName(t *testing.T) {
	assert.Equal(t, "Summarize", methodName("/kiosk.admin.v1.AdminService/Summarize"))
	assert.Equal(t, "Summarize", methodName("Summarize"))
}
