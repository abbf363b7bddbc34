package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
driver: postgres
server:
  port: 9090
database:
  host: db.internal
  max_open_conns: 40
jwt:
  secret: file-secret
booking:
  min_lead_time: 2h
rate_limit:
  window: 30s
  max_requests: 20
  rules:
    - method: post
      path: /api/v1/bookings
      window: 1m
      max_requests: 5
outbox:
  retry_backoff: 30s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 40, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 2*time.Hour, cfg.Booking.MinLeadTime)
	assert.Equal(t, 3, cfg.Booking.MaxLeadMonths)
	assert.Equal(t, 30*time.Second, cfg.Outbox.RetryBackoff)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)

	rl := cfg.RateLimitConfig()
	assert.Equal(t, 30*time.Second, rl.Default.Window)
	assert.Equal(t, int64(20), rl.Default.MaxRequests)
	require.Contains(t, rl.Rules, "POST /api/v1/bookings")
	assert.Equal(t, int64(5), rl.Rules["POST /api/v1/bookings"].MaxRequests)

	assert.Equal(t, 2*time.Hour, cfg.ValidatorConfig().MinLeadTime)
	assert.Equal(t, 30*time.Second, cfg.OutboxProcessorConfig().RetryBackoff)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BOOKING_JWT_SECRET", "env-secret")
	t.Setenv("BOOKING_DATABASE_MAX_OPEN_CONNS", "7")
	t.Setenv("BOOKING_RATE_LIMIT_MAX_REQUESTS", "50")
	t.Setenv("BOOKING_CORS_ALLOW_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadConfig(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.Equal(t, int64(50), cfg.RateLimit.MaxRequests)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowOrigins)
	// untouched by the environment
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "driver: mongo\njwt:\n  secret: s\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server:\n  port: 1\n"))
	assert.ErrorContains(t, err, "jwt.secret")

	_, err = LoadConfig(writeConfig(t, "jwt:\n  secret: s\nrate_limit:\n  window: 500us\n"))
	assert.ErrorContains(t, err, "rate_limit")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsSubMillisecondRuleWindow(t *testing.T) {
	cfg := &Config{
		Driver: DriverMemory,
		JWT:    JWTConfig{Secret: "s"},
		RateLimit: RateLimitConfig{
			Window:      time.Minute,
			MaxRequests: 100,
			Rules: []RuleConfig{
				{Method: "GET", Path: "/api/v1/bookings", Window: 500 * time.Microsecond, MaxRequests: 2},
			},
		},
	}
	assert.ErrorContains(t, cfg.Validate(), "GET /api/v1/bookings")

	cfg.RateLimit.Rules[0].Window = time.Millisecond
	assert.NoError(t, cfg.Validate())
}
