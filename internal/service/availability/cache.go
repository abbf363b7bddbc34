package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/model"
)

// Cached days are never deleted. Each key embeds a provider generation and a
// per-date generation; invalidation bumps a generation so readers move on to
// a fresh key and the old entry ages out on its TTL.

func providerGenKey(providerID uuid.UUID) string {
	return fmt.Sprintf("availability:gen:%s", providerID)
}

func dateGenKey(providerID uuid.UUID, date string) string {
	return fmt.Sprintf("availability:gen:%s:%s", providerID, date)
}

// cacheKey returns false when the generations cannot be read, in which case
// the caller computes without caching.
func (s *Service) cacheKey(ctx context.Context, providerID uuid.UUID, day time.Time, serviceTypeID *uuid.UUID, loc *time.Location) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	date := day.In(loc).Format(model.DateFormat)

	pgen, err := cache.Version(ctx, s.cache, providerGenKey(providerID))
	if err != nil {
		s.metrics.CacheResult("error")
		s.logger.Debug("availability generation read failed", "error", err.Error())
		return "", false
	}
	dgen, err := cache.Version(ctx, s.cache, dateGenKey(providerID, date))
	if err != nil {
		s.metrics.CacheResult("error")
		s.logger.Debug("availability generation read failed", "error", err.Error())
		return "", false
	}

	svc := "all"
	if serviceTypeID != nil {
		svc = serviceTypeID.String()
	}
	return fmt.Sprintf("availability:%s:g%d:%s:g%d:%s:%s", providerID, pgen, date, dgen, svc, loc.String()), true
}

// Invalidate drops cached availability for every calendar date that at can
// fall on in any timezone.
func (s *Service) Invalidate(ctx context.Context, providerID uuid.UUID, at time.Time) {
	if s.cache == nil {
		return
	}
	utc := at.UTC()
	for _, offset := range []int{-1, 0, 1} {
		date := utc.AddDate(0, 0, offset).Format(model.DateFormat)
		key := dateGenKey(providerID, date)
		if _, err := s.cache.Incr(ctx, key); err != nil {
			s.logger.Warn(err, "availability invalidation failed", "key", key)
			continue
		}
		if err := s.cache.Expire(ctx, key, 24*time.Hour+s.cfg.CacheTTL); err != nil {
			s.logger.Debug("availability generation expiry failed", "key", key, "error", err.Error())
		}
	}
}

// InvalidateProvider drops every cached day for the provider.
func (s *Service) InvalidateProvider(ctx context.Context, providerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, providerGenKey(providerID)); err != nil {
		s.logger.Warn(err, "availability invalidation failed", "provider_id", providerID.String())
	}
}
