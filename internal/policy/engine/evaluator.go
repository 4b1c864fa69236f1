package engine

import "context"

// Request is one authorization question: may principal call method?
type Request struct {
	Subject string
	Role    string
	// Method is the short RPC name, e.g. "Summarize".
	Method string
}

// Authorizer decides admin RPC access.
type Authorizer interface {
	Allow(ctx context.Context, req Request) (bool, error)
}
