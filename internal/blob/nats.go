package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"kiosk-engine/internal/apperr"
)

// NATSStore keeps objects in a JetStream object store bucket.
type NATSStore struct {
	obs jetstream.ObjectStore
}

// NewNATSStore creates (or reuses) the bucket on the connected server.
func NewNATSStore(ctx context.Context, nc *nats.Conn, bucket string) (*NATSStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	obs, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Phone uploads for kiosk handoff slots",
	})
	if err != nil {
		return nil, fmt.Errorf("object store %s: %w", bucket, err)
	}
	return &NATSStore{obs: obs}, nil
}

func (s *NATSStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.obs.PutBytes(ctx, key, data)
	return err
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.obs.GetBytes(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, apperr.Wrap(apperr.ErrNotFound, "blob %s", key)
	}
	return data, err
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	err := s.obs.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil
	}
	return err
}
