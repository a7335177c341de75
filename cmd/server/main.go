package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/api"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/config"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/database"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/extract"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/kafka"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/logging"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/metrics"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/orchestrator"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/pipeline"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/platform/httpclient"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/providers"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/redis"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/reviewer"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/scheduler"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/tracker"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log configuration: %v\n", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(cfg.Database.ConnectionString(), log); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	log.Info().Msg("Connected to PostgreSQL database")

	// Connect to Redis
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis, continuing without cache")
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info().Msg("Connected to Redis cache")
	}

	recorder := metrics.New(prometheus.DefaultRegisterer)

	// Create Kafka producer
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, log)
	producer.SetRecorder(recorder)
	defer producer.Close()
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.EventsTopic).Msg("Kafka producer initialized")

	// Opinion sources
	httpClient := httpclient.NewClient(httpclient.ClientOptions{
		Timeout:         cfg.Pipeline.ProviderTimeout,
		RequestsPerSec:  cfg.Pipeline.RequestsPerSec,
		MaxRetryTimeout: cfg.Pipeline.MaxRetryDuration,
	})
	extractor := extract.New(cfg.Pipeline.TopPickCount)
	sources, err := providers.Build(cfg.EnabledProviders(), httpClient, extractor, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build opinion sources")
	}
	for _, s := range sources {
		log.Info().Str("provider", s.Name()).Msg("Opinion source enabled")
	}

	orch := orchestrator.New(sources, log,
		orchestrator.WithTimeout(cfg.Pipeline.ProviderTimeout),
		orchestrator.WithRecorder(recorder),
	)
	if orch.Providers() == 0 {
		log.Warn().Msg("No opinion source has credentials, pick runs will produce empty batches")
	}

	opts := []pipeline.Option{
		pipeline.WithPublisher(producer),
		pipeline.WithConsensusWindow(cfg.Pipeline.ConsensusWindow),
	}
	if cfg.Reviewer.Enabled() {
		rc := reviewer.NewClient(cfg.Reviewer.BaseURL, cfg.Reviewer.Token, cfg.Reviewer.Name, cfg.Reviewer.Timeout, log)
		rc.SetRecorder(recorder)
		opts = append(opts, pipeline.WithReviewer(rc))
		log.Info().Str("reviewer", rc.Name()).Str("url", cfg.Reviewer.BaseURL).Msg("Reviewer enabled")
	}
	if redisClient != nil {
		opts = append(opts, pipeline.WithCache(redisClient))
	}
	service := pipeline.New(orch, db, log, opts...)

	predictions := tracker.New(db, producer, log)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Apply prediction outcomes published by the resolver
	outcomes := kafka.NewOutcomesConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.OutcomesTopic,
		cfg.Kafka.ConsumerGroup,
		predictions,
		log,
	)
	go func() {
		if err := outcomes.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Outcomes consumer error")
		}
	}()

	// Scheduled pick runs
	sched := scheduler.New(log)
	picksTimeout := cfg.Pipeline.ProviderTimeout + cfg.Reviewer.Timeout + time.Minute
	picksJob := scheduler.NewPicksJob(service, picksTimeout)
	if err := sched.AddJob(cfg.Pipeline.Schedule, picksJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Pipeline.Schedule).Msg("Invalid pick schedule")
	}
	sched.Start()
	if cfg.Pipeline.RunOnStart {
		go func() {
			if err := sched.RunNow(picksJob); err != nil {
				log.Warn().Err(err).Msg("Startup pick run failed")
			}
		}()
	}

	// Set up HTTP handler and routes
	handler := api.NewHandler(predictions, service, log)
	handler.AddHealthCheck("postgres", db, true)
	if redisClient != nil {
		handler.AddHealthCheck("redis", redisClient, false)
	}
	router := api.SetupRoutes(handler, promhttp.Handler())

	// Create HTTP server. Manual pick runs wait on every source and the reviewer.
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: picksTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")

	// Cancel context to stop Kafka consumer
	cancel()
	sched.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := outcomes.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing outcomes consumer")
	}

	log.Info().Msg("Server stopped")
}

func runMigrations(databaseURL string, log zerolog.Logger) error {
	m, err := migrate.New("file://./db/migrations", databaseURL)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("No migrations to apply, database is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.Info().Msg("Database migrations applied")
	return nil
}
