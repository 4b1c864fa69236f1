package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	auditrepo "kiosk-engine/internal/audit/repository"
	"kiosk-engine/internal/blob"
	"kiosk-engine/internal/config"
	"kiosk-engine/internal/db"
	devicerepo "kiosk-engine/internal/device/repository"
	handoffdomain "kiosk-engine/internal/handoff/domain"
	handoffrepo "kiosk-engine/internal/handoff/repository"
	"kiosk-engine/internal/notify"
	sessiondomain "kiosk-engine/internal/session/domain"
	sessionrepo "kiosk-engine/internal/session/repository"
	"kiosk-engine/internal/telemetry"
	otelsetup "kiosk-engine/internal/telemetry/otel"
	"kiosk-engine/internal/telemetry/producer"
)

type notifier interface {
	HandoffChanged(ctx context.Context, h *handoffdomain.Handoff)
	SessionClosed(ctx context.Context, s *sessiondomain.Session)
}

// stores holds the repositories and external connections the services run on.
type stores struct {
	db       *sql.DB
	nc       *nats.Conn
	devices  devicerepo.Repository
	sessions sessionrepo.Repository
	handoffs handoffrepo.Repository
	audit    auditrepo.Repository
	blobs    blob.Store
	notifier notifier
}

// openStores selects Postgres or in-memory repositories and, when NATS_URL is set, the JetStream
// blob store and NATS change notifications.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	st := &stores{notifier: notify.Noop{}}
	if cfg.InMemory() {
		log.Warn().Msg("DATABASE_URL not set; using in-memory stores")
		devices := devicerepo.NewMemoryRepository()
		sessions := sessionrepo.NewMemoryRepository(func(ctx context.Context, kioskID string) (bool, error) {
			d, err := devices.GetByKioskID(ctx, kioskID)
			return d != nil, err
		})
		st.devices = devices
		st.sessions = sessions
		st.handoffs = handoffrepo.NewMemoryRepository(func(ctx context.Context, id string) (bool, error) {
			s, err := sessions.GetByID(ctx, id)
			return s != nil, err
		})
		st.audit = auditrepo.NewMemoryRepository()
		st.blobs = blob.NewMemoryStore()
	} else {
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		st.db = sqlDB
		st.devices = devicerepo.NewPostgresRepository(sqlDB)
		st.sessions = sessionrepo.NewPostgresRepository(sqlDB)
		st.handoffs = handoffrepo.NewPostgresRepository(sqlDB)
		st.audit = auditrepo.NewPostgresRepository(sqlDB)
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("kiosk-engine"))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		st.nc = nc
		objects, err := blob.NewNATSStore(ctx, nc, cfg.BlobBucket)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.blobs = objects
		st.notifier = notify.NewNATSNotifier(nc, log)
	}
	return st, nil
}

// Close drains NATS and closes the database.
func (st *stores) Close() {
	if st.nc != nil {
		_ = st.nc.Drain()
	}
	if st.db != nil {
		_ = st.db.Close()
	}
}

// newEmitter fans accepted session events out to the OTel log pipeline and, when KAFKA_BROKERS is
// set, the Kafka analytics topic.
func newEmitter(cfg *config.Config, providers *otelsetup.Providers, log zerolog.Logger) (telemetry.EventEmitter, func(), error) {
	fanout := telemetry.Fanout{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	closeFn := func() {}
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		p, err := producer.NewKafkaProducer(brokers, cfg.SessionEventsTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		fanout = append(fanout, p)
		closeFn = func() {
			if err := p.Close(); err != nil {
				log.Warn().Err(err).Msg("kafka producer close")
			}
		}
		log.Info().Strs("brokers", brokers).Str("topic", cfg.SessionEventsTopic).Msg("session event stream enabled")
	}
	return fanout, closeFn, nil
}
