// Package main provides the entrypoint for the Oblivio deletion worker.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/oblivio/oblivio/internal/auth"
	"github.com/oblivio/oblivio/internal/authlock"
	"github.com/oblivio/oblivio/internal/backup"
	"github.com/oblivio/oblivio/internal/database"
	"github.com/oblivio/oblivio/internal/erasure"
	"github.com/oblivio/oblivio/internal/feed"
	"github.com/oblivio/oblivio/internal/notify"
	"github.com/oblivio/oblivio/internal/ops"
	"github.com/oblivio/oblivio/internal/request"
	"github.com/oblivio/oblivio/internal/saga"
	"github.com/oblivio/oblivio/internal/sessionlock"
	"github.com/oblivio/oblivio/internal/telemetry"
	"github.com/oblivio/oblivio/internal/userdata"
	"github.com/oblivio/oblivio/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "oblivio-worker"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Oblivio deletion worker")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	cfg := worker.ConfigFromEnv()

	// Initialize OpenTelemetry
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Backup destination
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create storage client")
	}
	defer storageClient.Close()
	writer := backup.NewGCSWriter(storageClient, cfg.BackupBucket)
	log.Info().Str("bucket", cfg.BackupBucket).Msg("backup writer initialized")

	// Repositories
	store := userdata.NewPostgresStore(pool)
	requestRepo := request.NewPostgresRepository(pool)
	failedIndex := request.NewPostgresFailedIndex(pool)
	lockRepo := authlock.NewPostgresRepository(pool)
	runRepo := saga.NewPostgresRepository(pool)

	// Services
	eraser := erasure.NewService(erasure.ServiceConfig{
		Store:  store,
		Writer: writer,
		Logger: log,
	})
	cleaner := authlock.NewCleaner(lockRepo, log)
	tracker := request.NewStatusTracker(requestRepo, log)

	tokens := auth.NewServiceTokenIssuer(auth.ServiceTokenConfig{
		SigningKey: cfg.SessionSigningKey,
		Issuer:     serviceName,
		Audience:   "session-api",
	})
	sessions := sessionlock.NewManager(sessionlock.ManagerConfig{
		BaseURL: cfg.SessionAPIBase,
		Tokens:  tokens,
		Logger:  log,
	})

	notifier := notify.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom, log)
	feedUpdater := feed.NewPostgresUpdater(pool)

	deletionSaga := saga.New(saga.Config{
		GracePeriod:     cfg.GracePeriod,
		DownloadRecheck: cfg.DownloadRecheck,
	}, saga.Deps{
		Runs:     runRepo,
		Requests: requestRepo,
		Tracker:  tracker,
		Failed:   failedIndex,
		Store:    store,
		Eraser:   eraser,
		Locks:    cleaner,
		Sessions: sessions,
		Notifier: notifier,
		Feed:     feedUpdater,
		Writer:   writer,
		Logger:   log,
	})
	log.Info().
		Dur("grace_period", cfg.GracePeriod).
		Dur("download_recheck", cfg.DownloadRecheck).
		Msg("deletion saga initialized")

	// Pub/Sub intake
	pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSubProjectID,
		SubscriptionName: cfg.PubSubSubscription,
		Saga:             deletionSaga,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer pubsubHandler.Close()

	go func() {
		if err := pubsubHandler.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("pubsub handler error")
		}
	}()

	// Resume loop for runs waiting out their grace period or a download
	resumeLoop := worker.NewResumeLoop(worker.ResumeConfig{
		Saga:     deletionSaga,
		Interval: cfg.ResumeInterval,
		Batch:    cfg.ResumeBatch,
		Logger:   log,
	})
	go resumeLoop.Run(ctx)

	// Ops HTTP surface
	router := ops.NewRouter(ops.RouterConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Logger:    log,
		Handler:   ops.NewHandler(Version, BuildTime, requestRepo),
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("ops server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("worker stopped")
}
