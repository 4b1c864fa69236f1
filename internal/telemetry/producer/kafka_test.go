package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk-engine/internal/telemetry/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed++
	return nil
}

func TestNewKafkaProducer_Disabled(t *testing.T) {
	p, err := NewKafkaProducer(nil, "topic")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewKafkaProducer([]string{"localhost:9092"}, "")
	require.NoError(t, err)
	assert.Nil(t, p)

	// nil producer is usable
	assert.NoError(t, p.Emit(context.Background(), &domain.SessionEvent{}))
	assert.NoError(t, p.Close())
}

func TestKafkaProducer_EmitKeysBySession(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "events"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := p.Emit(context.Background(), &domain.SessionEvent{
		EventID: "e1", SessionID: "s1", KioskID: "k1", Category: "search", Action: "query", OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "s1", string(w.msgs[0].Key))
	assert.Equal(t, at, w.msgs[0].Time)

	var got domain.SessionEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "k1", got.KioskID)
	assert.Equal(t, "query", got.Action)
}

func TestKafkaProducer_EmitError(t *testing.T) {
	p := &KafkaProducer{writer: &fakeWriter{err: errors.New("leader not available")}}
	err := p.Emit(context.Background(), &domain.SessionEvent{SessionID: "s1"})
	assert.EqualError(t, err, "leader not available")
}

func TestKafkaProducer_NilEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w}
	require.NoError(t, p.Emit(context.Background(), nil))
	assert.Empty(t, w.msgs)
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
}
