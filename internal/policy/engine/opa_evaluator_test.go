package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx)
	require.NoError(t, err)
	require.NoError(t, e.HealthCheck(ctx))

	testCases := []struct {
		role   string
		method string
		want   bool
	}{
		{"admin", "ReapStaleSessions", true},
		{"admin", "RegisterKiosk", true},
		{"admin", "Summarize", true},
		{"operator", "Summarize", true},
		{"operator", "ListFleetPresence", true},
		{"operator", "GetSession", true},
		{"operator", "ReapStaleSessions", false},
		{"operator", "SetKioskActive", false},
		{"operator", "ListAuditLog", false},
		{"admin", "ListAuditLog", true},
		{"guest", "Summarize", false},
		{"", "Summarize", false},
	}
	for _, tc := range testCases {
		t.Run(tc.role+"/"+tc.method, func(t *testing.T) {
			got, err := e.Allow(ctx, Request{Subject: "u1", Role: tc.role, Method: tc.method})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	ctx := context.Background()
	policy := `package kiosk.authz

default allow := false

allow if input.principal.subject == "root"
`
	path := filepath.Join(t.TempDir(), "authz.rego")
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))
	e, err := NewOPAEvaluatorFromFile(ctx, path)
	require.NoError(t, err)

	ok, err := e.Allow(ctx, Request{Subject: "root", Role: "guest", Method: "ReapStaleSessions"})
	require.NoError(t, err)
	assert.True(t, ok, "root is allowed by the custom policy")
	ok, err = e.Allow(ctx, Request{Subject: "someone", Role: "admin", Method: "Summarize"})
	require.NoError(t, err)
	assert.False(t, ok, "custom policy replaces the default one")
}

func TestNewOPAEvaluator_InvalidPolicy(t *testing.T) {
	_, err := NewOPAEvaluator(context.Background(), "package kiosk.authz\n\nallow if {")
	assert.Error(t, err, "policy that does not compile")
	_, err = NewOPAEvaluatorFromFile(context.Background(), "/nonexistent/authz.rego")
	assert.Error(t, err, "missing policy file")
}
