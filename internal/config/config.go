package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/service/availability"
	"github.com/jwalitptl/booking-api/internal/service/booking"
	"github.com/jwalitptl/booking-api/internal/service/ratelimit"
	"github.com/jwalitptl/booking-api/pkg/worker"
)

// EnvPrefix namespaces environment overrides, e.g. BOOKING_DATABASE_HOST.
const EnvPrefix = "BOOKING"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver       string             `mapstructure:"driver"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Booking      BookingConfig      `mapstructure:"booking"`
	Availability AvailabilityConfig `mapstructure:"availability"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit" split_words:"true"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Log          LogConfig          `mapstructure:"log"`
	CORS         CORSConfig         `mapstructure:"cors"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" split_words:"true"`
	Migrate      bool   `mapstructure:"migrate"`
}

// RedisConfig leaves URL empty to run on the in-process cache.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" split_words:"true"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type BookingConfig struct {
	MinLeadTime     time.Duration `mapstructure:"min_lead_time" split_words:"true"`
	MaxLeadMonths   int           `mapstructure:"max_lead_months" split_words:"true"`
	BookingCacheTTL time.Duration `mapstructure:"booking_cache_ttl" split_words:"true"`
	ListCacheTTL    time.Duration `mapstructure:"list_cache_ttl" split_words:"true"`
}

type AvailabilityConfig struct {
	CacheTTL       time.Duration `mapstructure:"cache_ttl" split_words:"true"`
	MinNotice      time.Duration `mapstructure:"min_notice" split_words:"true"`
	MaxRangeDays   int           `mapstructure:"max_range_days" split_words:"true"`
	SearchDays     int           `mapstructure:"search_days" split_words:"true"`
	PreferredRange time.Duration `mapstructure:"preferred_range" split_words:"true"`
}

type RuleConfig struct {
	Method      string        `mapstructure:"method"`
	Path        string        `mapstructure:"path"`
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int64         `mapstructure:"max_requests"`
}

type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int64         `mapstructure:"max_requests" split_words:"true"`
	// Rules are endpoint overrides. Only settable from the config file.
	Rules []RuleConfig `mapstructure:"rules" ignored:"true"`
	// ThrottleRate and ThrottleBurst size the process-wide token bucket.
	// A zero rate disables it.
	ThrottleRate  float64 `mapstructure:"throttle_rate" split_words:"true"`
	ThrottleBurst int     `mapstructure:"throttle_burst" split_words:"true"`
	// CleanupInterval is how often expired fallback windows are purged.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval    time.Duration `mapstructure:"poll_interval" split_words:"true"`
	MaxAttempts     int           `mapstructure:"max_attempts" split_words:"true"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins" split_words:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver", DriverMemory)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "booking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("jwt.issuer", "booking-api")
	v.SetDefault("jwt.ttl", time.Hour)

	v.SetDefault("booking.min_lead_time", booking.DefaultMinLeadTime)
	v.SetDefault("booking.max_lead_months", booking.DefaultMaxLeadMonths)
	v.SetDefault("booking.booking_cache_ttl", booking.DefaultBookingCacheTTL)
	v.SetDefault("booking.list_cache_ttl", booking.DefaultListCacheTTL)

	v.SetDefault("availability.cache_ttl", availability.DefaultCacheTTL)
	v.SetDefault("availability.min_notice", availability.DefaultMinNotice)
	v.SetDefault("availability.max_range_days", availability.DefaultMaxRangeDays)
	v.SetDefault("availability.search_days", availability.DefaultSearchDays)
	v.SetDefault("availability.preferred_range", availability.DefaultPreferredRange)

	v.SetDefault("rate_limit.window", ratelimit.DefaultRule.Window)
	v.SetDefault("rate_limit.max_requests", ratelimit.DefaultRule.MaxRequests)
	v.SetDefault("rate_limit.cleanup_interval", 5*time.Minute)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", time.Second)
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.retry_backoff", 10*time.Second)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "booking")

	v.SetDefault("log.level", "info")
}

// LoadConfig reads path, or config.yaml from the usual directories when
// path is empty, then applies BOOKING_* environment overrides. A missing
// config file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.RateLimit.Window < ratelimit.MinWindow || c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit needs window >= %s and max_requests > 0", ratelimit.MinWindow)
	}
	for _, r := range c.RateLimit.Rules {
		if r.Method == "" || r.Path == "" || r.Window < ratelimit.MinWindow || r.MaxRequests <= 0 {
			return fmt.Errorf("invalid rate limit rule for %s %s", r.Method, r.Path)
		}
	}
	return nil
}

func (c *Config) CacheConfig() cache.RedisConfig {
	return cache.RedisConfig{
		URL:          c.Redis.URL,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
		MaxRetries:   c.Redis.MaxRetries,
		DialTimeout:  c.Redis.DialTimeout,
	}
}

func (c *Config) ValidatorConfig() booking.ValidatorConfig {
	return booking.ValidatorConfig{
		MinLeadTime:   c.Booking.MinLeadTime,
		MaxLeadMonths: c.Booking.MaxLeadMonths,
	}
}

func (c *Config) BookingConfig() booking.Config {
	return booking.Config{
		BookingCacheTTL: c.Booking.BookingCacheTTL,
		ListCacheTTL:    c.Booking.ListCacheTTL,
	}
}

func (c *Config) AvailabilityConfig() availability.Config {
	return availability.Config{
		CacheTTL:       c.Availability.CacheTTL,
		MinNotice:      c.Availability.MinNotice,
		MaxRangeDays:   c.Availability.MaxRangeDays,
		SearchDays:     c.Availability.SearchDays,
		PreferredRange: c.Availability.PreferredRange,
	}
}

// RateLimitConfig keys rules by upper-cased method and route template.
func (c *Config) RateLimitConfig() ratelimit.Config {
	rules := make(map[string]ratelimit.Rule, len(c.RateLimit.Rules))
	for _, r := range c.RateLimit.Rules {
		rules[strings.ToUpper(r.Method)+" "+r.Path] = ratelimit.Rule{
			Window:      r.Window,
			MaxRequests: r.MaxRequests,
		}
	}
	return ratelimit.Config{
		Default: ratelimit.Rule{
			Window:      c.RateLimit.Window,
			MaxRequests: c.RateLimit.MaxRequests,
		},
		Rules: rules,
	}
}

func (c *Config) OutboxProcessorConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:       c.Outbox.BatchSize,
		PollInterval:    c.Outbox.PollInterval,
		MaxAttempts:     c.Outbox.MaxAttempts,
		RetryBackoff:    c.Outbox.RetryBackoff,
		Retention:       c.Outbox.Retention,
		CleanupInterval: c.Outbox.CleanupInterval,
	}
}
