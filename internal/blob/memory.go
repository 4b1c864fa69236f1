package blob

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"

	"kiosk-engine/internal/apperr"
)

// MemoryStore is a Store for tests and local development.
type MemoryStore struct {
	objects *xsync.Map[string, []byte]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: xsync.NewMap[string, []byte]()}
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	s.objects.Store(key, append([]byte(nil), data...))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := s.objects.Load(key)
	if !ok {
		return nil, apperr.Wrap(apperr.ErrNotFound, "blob %s", key)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.objects.Delete(key)
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	return s.objects.Size()
}
