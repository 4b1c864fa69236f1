package telemetry

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-engine/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.SessionEvent
	emitErr error
	delay   time.Duration
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.SessionEvent) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	EmitAsync(nil, zerolog.Nop(), &domain.SessionEvent{SessionID: "s1"})
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, zerolog.Nop(), nil)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, emitter.count())
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, zerolog.Nop(), &domain.SessionEvent{SessionID: "s1", KioskID: "k1", Category: "search", Action: "query"})

	require.Eventually(t, func() bool { return emitter.count() == 1 }, time.Second, 5*time.Millisecond)
	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	assert.Equal(t, "s1", emitter.events[0].SessionID)
	assert.Equal(t, "search", emitter.events[0].Category)
}

func TestEmitAsync_ErrorIsLogged(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	w := zerolog.SyncWriter(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}))
	emitter := &mockEventEmitter{emitErr: errors.New("broker down")}
	EmitAsync(emitter, zerolog.New(w), &domain.SessionEvent{SessionID: "s1"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Contains(buf.Bytes(), []byte("broker down"))
	}, time.Second, 5*time.Millisecond)
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, zerolog.Nop(), &domain.SessionEvent{SessionID: "s1"})
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool { return emitter.count() == 10 }, time.Second, 5*time.Millisecond)
}

func TestFanout_JoinsErrors(t *testing.T) {
	ok := &mockEventEmitter{}
	bad := &mockEventEmitter{emitErr: errors.New("nope")}
	f := Fanout{ok, nil, bad}

	err := f.Emit(context.Background(), &domain.SessionEvent{SessionID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
