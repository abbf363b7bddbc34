// Package app assembles the booking services, storage and HTTP router from
// configuration.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/config"
	availabilityHandler "github.com/jwalitptl/booking-api/internal/handler/availability"
	bookingHandler "github.com/jwalitptl/booking-api/internal/handler/booking"
	"github.com/jwalitptl/booking-api/internal/handler/health"
	prometheusHandler "github.com/jwalitptl/booking-api/internal/handler/prometheus"
	scheduleHandler "github.com/jwalitptl/booking-api/internal/handler/schedule"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/router"
	"github.com/jwalitptl/booking-api/internal/service/availability"
	"github.com/jwalitptl/booking-api/internal/service/booking"
	"github.com/jwalitptl/booking-api/internal/service/notification"
	"github.com/jwalitptl/booking-api/internal/service/ratelimit"
	"github.com/jwalitptl/booking-api/internal/service/schedule"
	"github.com/jwalitptl/booking-api/pkg/auth"
	"github.com/jwalitptl/booking-api/pkg/clock"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	"github.com/jwalitptl/booking-api/pkg/validator"
)

type API struct {
	Config   *config.Config
	Storage  *Storage
	Cache    cache.Cache
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	JWT      auth.JWTService

	Availability *availability.Service
	Bookings     *booking.Service
	Schedules    *schedule.Service
	Limiter      *ratelimit.Service

	Router *router.Router
}

// NewAPI opens storage and cache and wires the HTTP stack on top.
func NewAPI(ctx context.Context, cfg *config.Config, log *logger.Logger) (*API, error) {
	store, err := OpenStorage(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	c, client, err := OpenCache(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return Assemble(cfg, store, c, client, clock.Real{}, log), nil
}

// Assemble wires services and the router over already opened storage and
// cache.
func Assemble(cfg *config.Config, store *Storage, c cache.Cache, client *redis.Client, clk clock.Clock, log *logger.Logger) *API {
	a := &API{
		Config:  cfg,
		Storage: store,
		Cache:   c,
		Redis:   client,
	}

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Metrics = metrics.NewMetrics(cfg.Metrics.Namespace, a.Registry)
	}

	schema := validator.New()
	a.JWT = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

	a.Availability = availability.NewService(
		store.Schedules,
		store.Bookings,
		store.Directory,
		c,
		clk,
		log.With("component", "availability"),
		a.Metrics,
		cfg.AvailabilityConfig(),
	)
	bookingValidator := booking.NewValidator(
		schema,
		store.Directory,
		store.Bookings,
		a.Availability,
		clk,
		cfg.ValidatorConfig(),
	)
	a.Bookings = booking.NewService(
		store.TxManager,
		store.Bookings,
		bookingValidator,
		a.Availability,
		notification.NewService(store.Outbox, log.With("component", "notification")),
		c,
		clk,
		log.With("component", "booking"),
		a.Metrics,
		cfg.BookingConfig(),
	)
	a.Schedules = schedule.NewService(
		store.TxManager,
		store.Schedules,
		store.Directory,
		a.Availability,
		schema,
		log.With("component", "schedule"),
	)
	a.Limiter = ratelimit.NewService(
		c,
		store.RateLimits,
		clk,
		log.With("component", "ratelimit"),
		a.Metrics,
		cfg.RateLimitConfig(),
	)

	checks := map[string]health.Checker{"database": store.Ping}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	var promH *prometheusHandler.Handler
	if a.Registry != nil {
		promH = prometheusHandler.New(a.Registry)
	}

	var throttle *ratelimit.TokenBucket
	if cfg.RateLimit.ThrottleRate > 0 {
		burst := cfg.RateLimit.ThrottleBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit.ThrottleRate)
		}
		throttle = ratelimit.NewTokenBucket(burst, cfg.RateLimit.ThrottleRate, clk)
	}

	a.Router = router.NewRouter(
		log,
		a.Metrics,
		middleware.NewAuthMiddleware(a.JWT, a.Limiter),
		a.Limiter,
		bookingHandler.NewHandler(a.Bookings),
		availabilityHandler.NewHandler(a.Availability),
		scheduleHandler.NewHandler(a.Schedules),
		health.NewHandler(checks),
		promH,
		router.RouterConfig{
			Mode:       cfg.Server.Mode,
			CORSConfig: middleware.DefaultCORSConfig(cfg.CORS.AllowOrigins...),
			Throttle:   throttle,
		},
	)
	a.Router.Setup()
	return a
}

// Close waits for post-commit work and releases connections.
func (a *API) Close() error {
	a.Bookings.Wait()
	if a.Redis != nil {
		a.Redis.Close()
	}
	return a.Storage.Close()
}
