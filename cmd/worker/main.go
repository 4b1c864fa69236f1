// Worker consumes session events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, SESSION_EVENTS_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"kiosk-engine/internal/config"
	"kiosk-engine/internal/logger"
	"kiosk-engine/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	log = logger.WithComponent(log, "worker")

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		log.Fatal().Msg("LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.SessionEventsTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	pusher := &loki.Pusher{BaseURL: cfg.LokiURL, Client: &http.Client{Timeout: 10 * time.Second}}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("topic", cfg.SessionEventsTopic).Str("group", cfg.KafkaGroupID).Str("loki", cfg.LokiURL).Msg("consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("stopped")
				return
			}
			log.Warn().Err(err).Msg("kafka read error")
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := pusher.Push(pushCtx, msg.Value); err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("loki push failed")
		}
		cancel()
	}
}
