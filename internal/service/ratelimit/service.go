// Package ratelimit admits or rejects requests per identity and endpoint
// using fixed-window counters shared through the cache.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/clock"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

// Rule limits requests to MaxRequests per Window.
type Rule struct {
	Window      time.Duration `mapstructure:"window" json:"window"`
	MaxRequests int64         `mapstructure:"max_requests" json:"max_requests"`
}

// MinWindow is the smallest window the millisecond bucket keys can express.
const MinWindow = time.Millisecond

func (r Rule) valid() bool {
	return r.Window >= MinWindow && r.MaxRequests > 0
}

// DefaultRule applies to endpoints without their own rule.
var DefaultRule = Rule{Window: time.Minute, MaxRequests: 100}

type Config struct {
	Default Rule
	// Rules is keyed by "METHOD /path", e.g. "POST /api/v1/bookings".
	Rules map[string]Rule
}

type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter int // seconds, set when denied
	ResetAt    time.Time
}

type Limiter interface {
	Check(ctx context.Context, method, path, identity string) Decision
}

type Service struct {
	cache   cache.Cache
	durable repository.RateLimitRepository
	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
	cfg     Config
}

func NewService(c cache.Cache, durable repository.RateLimitRepository, clk clock.Clock, log *logger.Logger, m *metrics.Metrics, cfg Config) *Service {
	if !cfg.Default.valid() {
		cfg.Default = DefaultRule
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{cache: c, durable: durable, clock: clk, logger: log, metrics: m, cfg: cfg}
}

// UserIdentity and AddressIdentity namespace the two identity kinds so a
// subject id can never collide with an address.
func UserIdentity(subjectID string) string { return "user:" + subjectID }

func AddressIdentity(addr string) string { return "ip:" + addr }

func (s *Service) rule(method, path string) Rule {
	if r, ok := s.cfg.Rules[method+" "+path]; ok && r.valid() {
		return r
	}
	return s.cfg.Default
}

// Check counts the request in the current fixed window and reports whether
// it is admitted. When neither counter store answers the request is allowed.
func (s *Service) Check(ctx context.Context, method, path, identity string) Decision {
	rule := s.rule(method, path)
	now := s.clock.Now()

	windowMs := rule.Window.Milliseconds()
	startMs := (now.UnixMilli() / windowMs) * windowMs
	windowEnd := time.UnixMilli(startMs + windowMs)
	key := fmt.Sprintf("ratelimit:%s:%s:%s:%d", identity, method, path, startMs)

	count, store, err := s.increment(ctx, key, rule.Window, windowEnd)
	if err != nil {
		s.logger.Warn(err, "rate limit counters unavailable, allowing request",
			"identity", identity, "endpoint", method+" "+path)
		s.metrics.RateLimit("allow", "none")
		return Decision{Allowed: true, Limit: rule.MaxRequests, Remaining: rule.MaxRequests, ResetAt: windowEnd}
	}

	d := Decision{Limit: rule.MaxRequests, ResetAt: windowEnd}
	if count > rule.MaxRequests {
		d.RetryAfter = int(math.Ceil(windowEnd.Sub(now).Seconds()))
		if d.RetryAfter < 1 {
			d.RetryAfter = 1
		}
		s.metrics.RateLimit("deny", store)
		return d
	}
	d.Allowed = true
	d.Remaining = rule.MaxRequests - count
	s.metrics.RateLimit("allow", store)
	return d
}

func (s *Service) increment(ctx context.Context, key string, window time.Duration, windowEnd time.Time) (int64, string, error) {
	if s.cache != nil {
		count, err := s.cache.Incr(ctx, key)
		if err == nil {
			if count == 1 {
				if err := s.cache.Expire(ctx, key, window); err != nil {
					s.logger.Debug("rate limit expiry not set", "key", key, "error", err.Error())
				}
			}
			return count, "cache", nil
		}
		s.logger.Debug("rate limit cache unavailable, using durable counter", "key", key, "error", err.Error())
	}

	if s.durable == nil {
		return 0, "", fmt.Errorf("no durable counter configured")
	}
	count, err := s.durable.IncrementAndGet(ctx, key, windowEnd)
	if err != nil {
		return 0, "", fmt.Errorf("durable counter: %w", err)
	}
	return count, "durable", nil
}
