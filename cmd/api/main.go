package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medpractice-booking/internal/api/router"
	"github.com/wolfman30/medpractice-booking/internal/app/bootstrap"
	"github.com/wolfman30/medpractice-booking/internal/audit"
	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/availability"
	appconfig "github.com/wolfman30/medpractice-booking/internal/config"
	"github.com/wolfman30/medpractice-booking/internal/events"
	"github.com/wolfman30/medpractice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medpractice-booking/internal/http/middleware"
	"github.com/wolfman30/medpractice-booking/internal/notify"
	"github.com/wolfman30/medpractice-booking/internal/observability/metrics"
	"github.com/wolfman30/medpractice-booking/internal/reservation"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/internal/visittype"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg, err := appconfig.Load()
	if err != nil {
		logging.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting medpractice-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.PracticeTimezone,
	)

	zone, err := scheduling.LoadZone(cfg.PracticeTimezone)
	if err != nil {
		logger.Error("failed to load practice timezone", "error", err)
		os.Exit(1)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStartup()

	pool, err := bootstrap.BuildPostgresPool(startupCtx, cfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB, err := bootstrap.BuildSQLDB(startupCtx, cfg)
	if err != nil {
		logger.Error("failed to open audit database handle", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(startupCtx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, schedulingMetrics := setupMetrics(cfg.MetricsEnabled)

	// Stores and services
	outbox := events.NewOutboxStore(pool)
	processed := events.NewProcessedStore(pool)

	var catalog visittype.Catalog = visittype.NewPostgresCatalog(pool)
	if redisClient != nil {
		catalog = visittype.NewCachedCatalog(catalog, redisClient, cfg.VisitTypeCacheTTL, logger)
	}

	availabilityService := availability.NewService(availability.NewPostgresRepository(pool, outbox), zone, logger).
		WithMetrics(schedulingMetrics).
		WithMinDuration(time.Duration(cfg.AvailabilityMinMinutes) * time.Minute)
	reservationService := reservation.NewService(reservation.NewPostgresRepository(pool, outbox), availabilityService, catalog, zone, logger).
		WithMetrics(schedulingMetrics)

	profiles := auth.NewProfileStore(pool)
	authenticator := buildAuthenticator(cfg, redisClient, profiles, logger)

	// Outbox consumers
	emailSender, err := bootstrap.BuildEmailSender(startupCtx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure email", "error", err)
		os.Exit(1)
	}
	notifier := notify.NewReservationNotifier(emailSender, profiles, processed, zone, logger)
	recorder := audit.NewRecorder(sqlDB, logger)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	deliverer := events.NewDeliverer(outbox, events.FanOut{recorder, notifier}, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithMaxAttempts(cfg.OutboxMaxAttempts)
	go deliverer.Start(workerCtx)
	go events.NewRetention(outbox, processed, cfg.OutboxRetention, logger).Start(workerCtx)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Janitor(time.Minute, workerCtx.Done())

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Authenticator:      authenticator,
		Availability:       handlers.NewAvailabilityHandler(availabilityService, zone, logger),
		Reservations:       handlers.NewReservationHandler(reservationService, recorder, zone, logger),
		VisitTypes:         handlers.NewVisitTypeHandler(catalog, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		HealthCheck:        pool.Ping,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// setupMetrics returns the /metrics handler backed by a private registry, or nils when disabled.
func setupMetrics(enabled bool) (http.Handler, *metrics.SchedulingMetrics) {
	if !enabled {
		return nil, nil
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics.NewSchedulingMetrics(registry)
}

// buildAuthenticator enforces session revocation only when Redis is reachable.
func buildAuthenticator(cfg *appconfig.Config, redisClient *redis.Client, profiles *auth.ProfileStore, logger *logging.Logger) *auth.Authenticator {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	if redisClient == nil {
		logger.Warn("redis unavailable; session revocation is not enforced")
		return auth.NewAuthenticator(tokens, nil, profiles)
	}
	return auth.NewAuthenticator(tokens, auth.NewSessionStore(redisClient), profiles)
}
