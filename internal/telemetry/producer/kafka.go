package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"kiosk-engine/internal/telemetry/domain"
)

// messageWriter is the subset of *kafka.Writer used by KafkaProducer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer messageWriter
	topic  string
}

// NewKafkaProducer creates a Kafka producer that writes session events to the given topic.
// Returns (nil, nil) when brokers or topic are empty. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, topic: topic}, nil
}

// Emit serializes the event as JSON and writes it to the Kafka topic keyed by session id,
// so events of one session stay in one partition and keep their order.
func (p *KafkaProducer) Emit(ctx context.Context, event *domain.SessionEvent) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
		Time:  event.OccurredAt,
	})
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
