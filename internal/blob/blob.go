// Package blob stores handoff images that are too large to keep on the handoff record.
package blob

import "context"

// Store is a flat key/value object store. Put overwrites, Get returns apperr.ErrNotFound for a
// missing key and Delete of a missing key is a no-op, so every call is safe to retry.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
