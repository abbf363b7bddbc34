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

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/booking-api/internal/app"
	"github.com/jwalitptl/booking-api/internal/config"
	"github.com/jwalitptl/booking-api/internal/worker"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/messaging"
	redisBroker "github.com/jwalitptl/booking-api/pkg/messaging/redis"
	pkgWorker "github.com/jwalitptl/booking-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.NewLogger(&logger.Config{
		Level: logger.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := app.NewAPI(ctx, cfg, l)
	if err != nil {
		l.Fatal(err, "failed to initialize api")
	}
	defer func() {
		if err := api.Close(); err != nil {
			l.Error(err, "failed to close resources")
		}
	}()

	// The standalone worker needs a shared database; with in-memory storage
	// the background jobs run in this process.
	if cfg.Driver == config.DriverMemory {
		if err := startBackground(ctx, api, l); err != nil {
			l.Fatal(err, "failed to start background workers")
		}
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.Router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		l.Info("starting server", "port", cfg.Server.Port, "driver", cfg.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	l.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "server forced to shutdown")
	}

	l.Info("server exited properly")
}

func startBackground(ctx context.Context, api *app.API, l *logger.Logger) error {
	var broker messaging.Broker = messaging.NewMemoryBroker(0)
	if api.Redis != nil {
		b, err := redisBroker.NewRedisBroker(ctx, api.Redis, l)
		if err != nil {
			return err
		}
		broker = b
	}

	processor, err := pkgWorker.NewOutboxProcessor(
		api.Storage.TxManager,
		api.Storage.Outbox,
		broker,
		api.Config.OutboxProcessorConfig(),
		nil,
		l.With("component", "outbox"),
		api.Metrics,
	)
	if err != nil {
		return err
	}
	go processor.Start(ctx)

	janitor := worker.NewRateLimitCleanupWorker(
		api.Storage.RateLimits,
		api.Config.RateLimit.CleanupInterval,
		nil,
		l.With("component", "ratelimit-cleanup"),
	)
	go janitor.Start(ctx)
	return nil
}
