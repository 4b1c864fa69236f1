package blob

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-engine/internal/apperr"
	"kiosk-engine/internal/platform/natstest"
)

func testStore(t *testing.T, s Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.Get(ctx, "handoff/t1/missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	big := bytes.Repeat([]byte{0xAB}, 300<<10)
	require.NoError(t, s.Put(ctx, "handoff/t1/a", big))
	got, err := s.Get(ctx, "handoff/t1/a")
	require.NoError(t, err)
	assert.Equal(t, big, got)

	require.NoError(t, s.Put(ctx, "handoff/t1/a", []byte("small")))
	got, err = s.Get(ctx, "handoff/t1/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), got)

	require.NoError(t, s.Delete(ctx, "handoff/t1/a"))
	require.NoError(t, s.Delete(ctx, "handoff/t1/a"))
	_, err = s.Get(ctx, "handoff/t1/a")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testStore(t, s)
	assert.Zero(t, s.Len())
}

func TestNATSStore(t *testing.T) {
	_, nc := natstest.Start(t)
	s, err := NewNATSStore(context.Background(), nc, "kiosk-test-images")
	require.NoError(t, err)
	testStore(t, s)
}
