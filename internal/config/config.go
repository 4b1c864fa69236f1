// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address of the kiosk and phone HTTP API (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the admin gRPC server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN; empty selects in-memory stores (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	// In-memory stores are rejected when Env is production.
	Env string `mapstructure:"APP_ENV"`

	// PresenceIdleThreshold is how long a kiosk without an open session stays online after its last heartbeat.
	PresenceIdleThreshold time.Duration `mapstructure:"PRESENCE_IDLE_THRESHOLD"`
	// PresenceActiveThreshold is the same window for a kiosk with an open session. Must exceed the idle threshold.
	PresenceActiveThreshold time.Duration `mapstructure:"PRESENCE_ACTIVE_THRESHOLD"`

	HandoffTTL       time.Duration `mapstructure:"HANDOFF_TTL"`
	HandoffMaxSlots  int           `mapstructure:"HANDOFF_MAX_SLOTS"`
	HandoffRetention time.Duration `mapstructure:"HANDOFF_RETENTION"`
	// HandoffBaseURL prefixes the URL encoded in the QR code (e.g. https://kiosk.example.com).
	HandoffBaseURL string `mapstructure:"HANDOFF_BASE_URL"`
	// HandoffInlineMaxBytes is the largest image kept inline on the handoff record; larger ones go to the blob store.
	HandoffInlineMaxBytes int64 `mapstructure:"HANDOFF_INLINE_MAX_BYTES"`
	// HandoffUploadMaxBytes caps the request body of a phone upload.
	HandoffUploadMaxBytes int64 `mapstructure:"HANDOFF_UPLOAD_MAX_BYTES"`

	// SessionReapCeiling is the age after which an open session is closed as abandoned.
	SessionReapCeiling time.Duration `mapstructure:"SESSION_REAP_CEILING"`
	// SweepInterval is the tick of the reaper and handoff GC jobs.
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`

	StorageTimeout     time.Duration `mapstructure:"STORAGE_TIMEOUT"`
	StorageMaxAttempts uint          `mapstructure:"STORAGE_MAX_ATTEMPTS"`

	// NATSURL enables the JetStream object store for large images and change notifications.
	NATSURL    string `mapstructure:"NATS_URL"`
	BlobBucket string `mapstructure:"BLOB_BUCKET"`

	// JWTPublicKey is the PEM-encoded public key or path to file used to verify admin bearer tokens.
	// Empty disables admin authentication (development only).
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// PolicyFile is an optional Rego module replacing the built-in admin authorization policy.
	PolicyFile string `mapstructure:"POLICY_FILE"`

	// OTLPEndpoint is the OpenTelemetry collector (gRPC) for traces, metrics and session event logs.
	// Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// Analytics (optional). When Kafka brokers are set, accepted session events are emitted to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers       string `mapstructure:"KAFKA_BROKERS"`
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`

	// Worker-only: Loki URL for the session event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the session event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("PRESENCE_IDLE_THRESHOLD", "90s")
	v.SetDefault("PRESENCE_ACTIVE_THRESHOLD", "120s")
	v.SetDefault("HANDOFF_TTL", "10m")
	v.SetDefault("HANDOFF_MAX_SLOTS", 6)
	v.SetDefault("HANDOFF_RETENTION", "1h")
	v.SetDefault("HANDOFF_BASE_URL", "http://localhost:8080")
	v.SetDefault("HANDOFF_INLINE_MAX_BYTES", 256<<10)
	v.SetDefault("HANDOFF_UPLOAD_MAX_BYTES", 10<<20)
	v.SetDefault("SESSION_REAP_CEILING", "2h")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("STORAGE_TIMEOUT", "3s")
	v.SetDefault("STORAGE_MAX_ATTEMPTS", 4)
	v.SetDefault("NATS_URL", "")
	v.SetDefault("BLOB_BUCKET", "kiosk-handoff-images")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "kiosk-auth")
	v.SetDefault("JWT_AUDIENCE", "kiosk-admin")
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "kiosk-engine")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_TOPIC", "kiosk-session-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "kiosk-session-events-worker")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.DatabaseURL == "" && c.Env == "production" {
		return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}
	if c.JWTPublicKey == "" && c.Env == "production" {
		return errors.New("config: JWT_PUBLIC_KEY must be set when APP_ENV=production")
	}
	if c.PresenceIdleThreshold <= 0 {
		return errors.New("config: PRESENCE_IDLE_THRESHOLD must be positive")
	}
	if c.PresenceActiveThreshold <= c.PresenceIdleThreshold {
		return errors.New("config: PRESENCE_ACTIVE_THRESHOLD must be greater than PRESENCE_IDLE_THRESHOLD")
	}
	if c.HandoffTTL <= 0 {
		return errors.New("config: HANDOFF_TTL must be positive")
	}
	if c.HandoffMaxSlots < 1 {
		return errors.New("config: HANDOFF_MAX_SLOTS must be at least 1")
	}
	if c.HandoffRetention < 0 {
		return errors.New("config: HANDOFF_RETENTION must not be negative")
	}
	if c.HandoffInlineMaxBytes < 0 || c.HandoffUploadMaxBytes <= 0 {
		return errors.New("config: HANDOFF_INLINE_MAX_BYTES and HANDOFF_UPLOAD_MAX_BYTES must be valid sizes")
	}
	if c.SessionReapCeiling <= 0 || c.SweepInterval <= 0 {
		return errors.New("config: SESSION_REAP_CEILING and SWEEP_INTERVAL must be positive")
	}
	if c.StorageTimeout <= 0 {
		return errors.New("config: STORAGE_TIMEOUT must be positive")
	}
	if c.StorageMaxAttempts == 0 {
		c.StorageMaxAttempts = 1
	}
	return nil
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the session event stream is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// InMemory reports whether the service runs without a database.
func (c *Config) InMemory() bool {
	return c.DatabaseURL == ""
}
