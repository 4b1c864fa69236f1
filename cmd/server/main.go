// Server runs the kiosk HTTP API, the admin gRPC API and the maintenance jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"kiosk-engine/internal/config"
	handoffservice "kiosk-engine/internal/handoff/service"
	healthhandler "kiosk-engine/internal/health/handler"
	"kiosk-engine/internal/httpapi"
	"kiosk-engine/internal/jobs"
	"kiosk-engine/internal/logger"
	"kiosk-engine/internal/platform/retry"
	"kiosk-engine/internal/policy/engine"
	"kiosk-engine/internal/presence"
	"kiosk-engine/internal/security"
	"kiosk-engine/internal/server"
	sessionservice "kiosk-engine/internal/session/service"
	"kiosk-engine/internal/telemetry"
	otelsetup "kiosk-engine/internal/telemetry/otel"
)

const shutdownTimeout = 15 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	emitter, closeEmitter, err := newEmitter(cfg, providers, log)
	if err != nil {
		return err
	}
	defer closeEmitter()

	policy := retry.Policy{
		Timeout:         cfg.StorageTimeout,
		MaxAttempts:     cfg.StorageMaxAttempts,
		InitialInterval: retry.DefaultPolicy().InitialInterval,
		MaxInterval:     retry.DefaultPolicy().MaxInterval,
	}
	thresholds := presence.Thresholds{Idle: cfg.PresenceIdleThreshold, Active: cfg.PresenceActiveThreshold}

	monitor := presence.NewMonitor(st.devices, st.sessions, thresholds, policy, metrics, log)
	tracker := sessionservice.NewTracker(st.sessions, st.devices, sessionservice.Options{
		Policy:   policy,
		Metrics:  metrics,
		Emitter:  emitter,
		Notifier: st.notifier,
		Logger:   log,
	})
	broker := handoffservice.NewBroker(st.handoffs, st.sessions, handoffservice.Config{
		TTL:            cfg.HandoffTTL,
		MaxSlots:       cfg.HandoffMaxSlots,
		Retention:      cfg.HandoffRetention,
		BaseURL:        cfg.HandoffBaseURL,
		InlineMaxBytes: cfg.HandoffInlineMaxBytes,
	}, handoffservice.Options{
		Policy:   policy,
		Blobs:    st.blobs,
		Notifier: st.notifier,
		Metrics:  metrics,
		Logger:   log,
	})

	authz, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	auth := server.Auth{Authorizer: authz}
	if cfg.JWTPublicKey != "" {
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return fmt.Errorf("jwt public key: %w", err)
		}
		if auth.Verifier, err = security.NewVerifier(pub, cfg.JWTIssuer, cfg.JWTAudience); err != nil {
			return fmt.Errorf("jwt verifier: %w", err)
		}
	}

	var pinger healthhandler.Pinger
	if st.db != nil {
		pinger = st.db
	}
	health := healthhandler.NewServer(pinger, authz)

	grpcServer := server.NewGRPCServer(server.Deps{
		Tracker:     tracker,
		Monitor:     monitor,
		ReapCeiling: cfg.SessionReapCeiling,
		AuditLog:    st.audit,
		Health:      health,
		Logger:      log,
	}, auth)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewServer(httpapi.Deps{
			Monitor:        monitor,
			Tracker:        tracker,
			Broker:         broker,
			Ready:          health,
			UploadMaxBytes: cfg.HandoffUploadMaxBytes,
			Logger:         log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runner := jobs.NewRunner(cfg.SweepInterval, log,
		jobs.ReapStaleSessions(tracker, cfg.SessionReapCeiling),
		jobs.SweepHandoffs(broker),
	)
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	jobsDone := make(chan struct{})
	go func() {
		defer close(jobsDone)
		runner.Run(jobsCtx)
	}()

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server failed; shutting down")
	}

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	grpcServer.GracefulStop()
	stopJobs()
	<-jobsDone

	// In-flight async session event emits finish before the exporters shut down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Info().Msg("stopped")
	return serveErr
}
