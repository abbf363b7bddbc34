package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/booking-api/internal/app"
	"github.com/jwalitptl/booking-api/internal/config"
	"github.com/jwalitptl/booking-api/internal/handler/health"
	prometheusHandler "github.com/jwalitptl/booking-api/internal/handler/prometheus"
	"github.com/jwalitptl/booking-api/internal/worker"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/messaging/redis"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	pkgWorker "github.com/jwalitptl/booking-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config file")
	healthPort := flag.Int("health-port", 8081, "port for health and metrics endpoints")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.Driver != config.DriverPostgres {
		log.Fatal().Str("driver", cfg.Driver).Msg("Worker requires the postgres driver")
	}
	if cfg.Redis.URL == "" {
		log.Fatal().Msg("Worker requires redis.url for notification delivery")
	}

	l := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	}).With("service", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	store, err := app.OpenStorage(ctx, cfg, l)
	if err != nil {
		l.Fatal(err, "Failed to open storage")
	}
	defer store.Close()

	// Initialize Redis broker
	_, client, err := app.OpenCache(ctx, cfg)
	if err != nil {
		l.Fatal(err, "Failed to connect to Redis")
	}
	defer client.Close()

	broker, err := redis.NewRedisBroker(ctx, client, l)
	if err != nil {
		l.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(cfg.Metrics.Namespace, registry)

	processor, err := pkgWorker.NewOutboxProcessor(
		store.TxManager,
		store.Outbox,
		broker,
		cfg.OutboxProcessorConfig(),
		nil,
		l.With("component", "outbox"),
		m,
	)
	if err != nil {
		l.Fatal(err, "Failed to create outbox processor")
	}

	janitor := worker.NewRateLimitCleanupWorker(
		store.RateLimits,
		cfg.RateLimit.CleanupInterval,
		nil,
		l.With("component", "ratelimit-cleanup"),
	)

	// Setup health check endpoints
	srv := setupHealthCheck(*healthPort, store, client, registry, l)

	go janitor.Start(ctx)
	processor.Start(ctx)

	if err := srv.Shutdown(context.Background()); err != nil {
		l.Error(err, "Health server shutdown failed")
	}
}

func setupHealthCheck(port int, store *app.Storage, client *goredis.Client, registry *prometheus.Registry, l *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	health.NewHandler(map[string]health.Checker{
		"database": store.Ping,
		"redis":    func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}).RegisterRoutes(engine)
	engine.GET("/metrics", prometheusHandler.New(registry).Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}
