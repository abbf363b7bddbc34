package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/config"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/repository/memory"
	"github.com/jwalitptl/booking-api/internal/repository/postgres"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

// Storage is every repository on one driver.
type Storage struct {
	TxManager  repository.TxManager
	Bookings   repository.BookingRepository
	Schedules  repository.ScheduleRepository
	Directory  repository.DirectoryRepository
	Outbox     repository.OutboxRepository
	RateLimits repository.RateLimitRepository

	// DB is set on the postgres driver, Memory on the memory driver.
	DB     *sqlx.DB
	Memory *memory.Store
}

func OpenStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Storage, error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn(nil, "Using in-memory storage; data is lost on restart")
		return NewMemoryStorage(memory.NewStore()), nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	base := postgres.NewBaseRepository(db)
	return &Storage{
		TxManager:  postgres.NewTxManager(base),
		Bookings:   postgres.NewBookingRepository(base),
		Schedules:  postgres.NewScheduleRepository(base),
		Directory:  postgres.NewDirectoryRepository(base),
		Outbox:     postgres.NewOutboxRepository(base),
		RateLimits: postgres.NewRateLimitRepository(base),
		DB:         db,
	}, nil
}

func NewMemoryStorage(store *memory.Store) *Storage {
	return &Storage{
		TxManager:  store,
		Bookings:   store.Bookings(),
		Schedules:  store.Schedules(),
		Directory:  store.Directory(),
		Outbox:     store.Outbox(),
		RateLimits: store.RateLimits(),
		Memory:     store,
	}
}

func (s *Storage) Ping(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.PingContext(ctx)
}

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// OpenCache connects to redis when a URL is configured and falls back to
// the in-process cache otherwise. The returned client is nil in that case.
func OpenCache(ctx context.Context, cfg *config.Config) (cache.Cache, *redis.Client, error) {
	if cfg.Redis.URL == "" {
		return cache.NewMemory(time.Minute), nil, nil
	}

	client, err := cache.NewRedisClient(cfg.CacheConfig())
	if err != nil {
		return nil, nil, err
	}
	c := cache.NewRedis(client)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return c, client, nil
}
