package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.kiosk.authz.allow"

// DefaultPolicy grants admins every admin RPC and operators the read-only ones.
const DefaultPolicy = `package kiosk.authz

default allow := false

read_only_methods := {"Summarize", "ListFleetPresence", "GetSession", "ListSessionEvents", "ReplaySession"}

allow if input.principal.role == "admin"

allow if {
	input.principal.role == "operator"
	input.method in read_only_methods
}
`

// OPAEvaluator evaluates admin authorization with an in-process Rego policy. The query is prepared
// once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the given Rego modules (DefaultPolicy when none are given). Every module
// must contribute to package kiosk.authz.
func NewOPAEvaluator(ctx context.Context, modules ...string) (*OPAEvaluator, error) {
	if len(modules) == 0 {
		modules = []string{DefaultPolicy}
	}
	files := make(map[string]string, len(modules))
	for i, m := range modules {
		files[fmt.Sprintf("policy_%d.rego", i)] = m
	}
	compiler, err := ast.CompileModules(files)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// NewOPAEvaluatorFromFile loads the policy from path, or uses DefaultPolicy when path is empty.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// Allow evaluates the policy. An undefined result denies.
func (e *OPAEvaluator) Allow(ctx context.Context, req Request) (bool, error) {
	input := map[string]any{
		"principal": map[string]any{
			"subject": req.Subject,
			"role":    req.Role,
		},
		"method": req.Method,
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	return rs.Allowed(), nil
}

// HealthCheck evaluates a fixed request to confirm the engine answers.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Allow(ctx, Request{Subject: "health", Role: "admin", Method: "Summarize"})
	return err
}
