package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/clock"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

const (
	DefaultCacheTTL       = 5 * time.Minute
	DefaultMinNotice      = time.Hour
	DefaultMaxRangeDays   = 30
	DefaultSearchDays     = 30
	DefaultPreferredRange = 60 * time.Minute
)

type Config struct {
	CacheTTL  time.Duration
	MinNotice time.Duration
	// MaxRangeDays bounds GetAvailabilityRange; SearchDays bounds the
	// next-slot scan.
	MaxRangeDays   int
	SearchDays     int
	PreferredRange time.Duration
}

func DefaultConfig() Config {
	return Config{
		CacheTTL:       DefaultCacheTTL,
		MinNotice:      DefaultMinNotice,
		MaxRangeDays:   DefaultMaxRangeDays,
		SearchDays:     DefaultSearchDays,
		PreferredRange: DefaultPreferredRange,
	}
}

type AvailabilityServicer interface {
	GetAvailability(ctx context.Context, q model.AvailabilityQuery) ([]model.TimeSlot, error)
	GetAvailabilityRange(ctx context.Context, q model.AvailabilityRangeQuery) ([]model.DayAvailability, error)
	GetNextAvailableSlot(ctx context.Context, providerID uuid.UUID, serviceTypeID *uuid.UUID, timezone string) (*model.TimeSlot, error)
	SearchAvailableProviders(ctx context.Context, q model.ProviderSearchQuery) ([]model.ProviderAvailability, error)
	CheckSlot(ctx context.Context, providerID, serviceTypeID uuid.UUID, at time.Time, loc *time.Location, excludeBookingID *uuid.UUID) error
	Invalidate(ctx context.Context, providerID uuid.UUID, at time.Time)
	InvalidateProvider(ctx context.Context, providerID uuid.UUID)
}

type Service struct {
	schedules repository.ScheduleRepository
	bookings  repository.BookingRepository
	directory repository.DirectoryRepository
	cache     cache.Cache
	clock     clock.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics
	cfg       Config
}

func NewService(
	schedules repository.ScheduleRepository,
	bookings repository.BookingRepository,
	directory repository.DirectoryRepository,
	c cache.Cache,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	def := DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.MinNotice < 0 {
		cfg.MinNotice = def.MinNotice
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = def.MaxRangeDays
	}
	if cfg.SearchDays <= 0 {
		cfg.SearchDays = def.SearchDays
	}
	if cfg.PreferredRange <= 0 {
		cfg.PreferredRange = def.PreferredRange
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		schedules: schedules,
		bookings:  bookings,
		directory: directory,
		cache:     c,
		clock:     clk,
		logger:    log,
		metrics:   m,
		cfg:       cfg,
	}
}

func (s *Service) GetAvailability(ctx context.Context, q model.AvailabilityQuery) ([]model.TimeSlot, error) {
	loc, err := s.resolveLocation(ctx, q.ProviderID, q.Timezone)
	if err != nil {
		return nil, err
	}
	day, err := parseDate(q.Date, loc)
	if err != nil {
		return nil, err
	}
	return s.dayAvailability(ctx, q.ProviderID, day, q.ServiceTypeID, loc)
}

func (s *Service) GetAvailabilityRange(ctx context.Context, q model.AvailabilityRangeQuery) ([]model.DayAvailability, error) {
	start, err := parseDate(q.StartDate, time.UTC)
	if err != nil {
		return nil, err
	}
	end, err := parseDate(q.EndDate, time.UTC)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperrors.NewValidation("end date is before start date", nil)
	}
	if end.Sub(start) > time.Duration(s.cfg.MaxRangeDays)*24*time.Hour {
		return nil, apperrors.NewRangeTooLarge(s.cfg.MaxRangeDays)
	}

	loc, err := s.resolveLocation(ctx, q.ProviderID, q.Timezone)
	if err != nil {
		return nil, err
	}

	var days []model.DayAvailability
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		local := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
		slots, err := s.dayAvailability(ctx, q.ProviderID, local, q.ServiceTypeID, loc)
		if err != nil {
			return nil, err
		}
		days = append(days, model.DayAvailability{Date: d.Format(model.DateFormat), Slots: slots})
	}
	return days, nil
}

// GetNextAvailableSlot returns nil when nothing is free within the search
// horizon.
func (s *Service) GetNextAvailableSlot(ctx context.Context, providerID uuid.UUID, serviceTypeID *uuid.UUID, timezone string) (*model.TimeSlot, error) {
	loc, err := s.resolveLocation(ctx, providerID, timezone)
	if err != nil {
		return nil, err
	}
	today := startOfDay(s.clock.Now().In(loc))
	for i := 0; i < s.cfg.SearchDays; i++ {
		slots, err := s.dayAvailability(ctx, providerID, today.AddDate(0, 0, i), serviceTypeID, loc)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			if slot.Available {
				slot := slot
				return &slot, nil
			}
		}
	}
	return nil, nil
}

// SearchAvailableProviders returns the clinic's providers that have at least
// one free slot on the date, most available first. With a preferred time only
// slots within PreferredRange of it count.
func (s *Service) SearchAvailableProviders(ctx context.Context, q model.ProviderSearchQuery) ([]model.ProviderAvailability, error) {
	clinic, err := s.directory.GetClinic(ctx, q.ClinicID)
	if err != nil {
		return nil, lookupError(err, "clinic", q.ClinicID)
	}
	tz := q.Timezone
	if tz == "" {
		tz = clinic.Timezone
	}
	loc, err := loadLocation(tz)
	if err != nil {
		return nil, err
	}
	day, err := parseDate(q.Date, loc)
	if err != nil {
		return nil, err
	}

	var preferred *time.Time
	if q.PreferredTime != "" {
		h, m, err := model.ParseClock(q.PreferredTime)
		if err != nil {
			return nil, apperrors.NewValidation("invalid preferred time", err)
		}
		p := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
		preferred = &p
	}

	providers, err := s.directory.ListActiveProviders(ctx, q.ClinicID)
	if err != nil {
		return nil, apperrors.NewTransient("list providers", err)
	}

	results := make([]model.ProviderAvailability, 0, len(providers))
	for _, p := range providers {
		slots, err := s.dayAvailability(ctx, p.ID, day, q.ServiceTypeID, loc)
		if err != nil {
			return nil, err
		}
		var free []model.TimeSlot
		for _, slot := range slots {
			if !slot.Available {
				continue
			}
			if preferred != nil && absDuration(slot.Time.Sub(*preferred)) > s.cfg.PreferredRange {
				continue
			}
			free = append(free, slot)
		}
		if len(free) == 0 {
			continue
		}
		results = append(results, model.ProviderAvailability{Provider: p, Slots: free, AvailableCount: len(free)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AvailableCount > results[j].AvailableCount
	})
	return results, nil
}

// CheckSlot verifies that at is a slot start in one of the provider's active
// windows serving the service type, is not blocked, and is not held by
// another non-terminal booking. It always reads storage directly.
func (s *Service) CheckSlot(ctx context.Context, providerID, serviceTypeID uuid.UUID, at time.Time, loc *time.Location, excludeBookingID *uuid.UUID) error {
	local := at.In(loc)
	schedules, err := s.schedules.ListActive(ctx, providerID, local.Weekday())
	if err != nil {
		return apperrors.NewTransient("load schedules", err)
	}

	matched := false
	for _, sc := range schedules {
		if !sc.AppliesTo(&serviceTypeID) {
			continue
		}
		ok, err := onSlotBoundary(sc, local, loc)
		if err != nil {
			s.logger.Warn(err, "skipping malformed schedule", "schedule_id", sc.ID.String())
			continue
		}
		if ok {
			matched = true
			break
		}
	}
	if !matched {
		return apperrors.NewValidation("requested time is not within the provider's schedule", nil).
			WithEntity("provider", providerID.String())
	}

	blocked, err := s.schedules.IsBlocked(ctx, providerID, at)
	if err != nil {
		return apperrors.NewTransient("check blocked slot", err)
	}
	if blocked {
		return apperrors.NewValidation("requested time is blocked", nil).
			WithEntity("provider", providerID.String())
	}

	taken, err := s.bookings.ExistsActiveAt(ctx, providerID, at, excludeBookingID)
	if err != nil {
		return apperrors.NewTransient("check booking conflict", err)
	}
	if taken {
		return apperrors.NewConflict("provider", providerID.String(), "time slot is already booked")
	}
	return nil
}

func onSlotBoundary(sc *model.ProviderSchedule, local time.Time, loc *time.Location) (bool, error) {
	if sc.SlotDurationMinutes <= 0 {
		return false, fmt.Errorf("schedule %s has non-positive slot duration", sc.ID)
	}
	start, end, err := sc.Bounds(local, loc)
	if err != nil {
		return false, err
	}
	step := time.Duration(sc.SlotDurationMinutes) * time.Minute
	for t := start; !t.Add(step).After(end); t = t.Add(step) {
		if t.Equal(local) {
			return true, nil
		}
		if t.After(local) {
			break
		}
	}
	return false, nil
}

// dayAvailability serves one day from cache, computing and storing it on a
// miss. Cache trouble only costs the cache.
func (s *Service) dayAvailability(ctx context.Context, providerID uuid.UUID, day time.Time, serviceTypeID *uuid.UUID, loc *time.Location) ([]model.TimeSlot, error) {
	key, cacheable := s.cacheKey(ctx, providerID, day, serviceTypeID, loc)
	if cacheable {
		var cached []model.TimeSlot
		err := cache.GetJSON(ctx, s.cache, key, &cached)
		switch {
		case err == nil:
			s.metrics.CacheResult("hit")
			for i := range cached {
				cached[i].Time = cached[i].Time.In(loc)
			}
			return cached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			s.metrics.CacheResult("miss")
		default:
			s.metrics.CacheResult("error")
			s.logger.Debug("availability cache read failed", "key", key, "error", err.Error())
		}
	}

	started := time.Now()
	slots, err := s.computeDay(ctx, providerID, day, serviceTypeID, loc)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveAvailability(time.Since(started).Seconds())

	if cacheable {
		if err := cache.SetJSON(ctx, s.cache, key, slots, s.cfg.CacheTTL); err != nil {
			s.logger.Debug("availability cache write failed", "key", key, "error", err.Error())
		}
	}
	return slots, nil
}

func (s *Service) computeDay(ctx context.Context, providerID uuid.UUID, day time.Time, serviceTypeID *uuid.UUID, loc *time.Location) ([]model.TimeSlot, error) {
	dayStart := startOfDay(day.In(loc))
	dayEnd := dayStart.AddDate(0, 0, 1)

	schedules, err := s.schedules.ListActive(ctx, providerID, dayStart.Weekday())
	if err != nil {
		return nil, apperrors.NewTransient("load schedules", err)
	}
	if len(schedules) == 0 {
		return []model.TimeSlot{}, nil
	}

	booked, err := s.bookings.ListActiveForProvider(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, apperrors.NewTransient("load bookings", err)
	}
	blocked, err := s.schedules.ListBlocked(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, apperrors.NewTransient("load blocked slots", err)
	}

	taken := make(map[int64]struct{}, len(booked)+len(blocked))
	for _, b := range booked {
		taken[b.ScheduledAt.UnixNano()] = struct{}{}
	}
	for _, b := range blocked {
		taken[b.BlockedAt.UnixNano()] = struct{}{}
	}

	// Anything before the notice cutoff is gone. For today that trims the
	// morning; past days come back fully unavailable.
	cutoff := s.clock.Now().Add(s.cfg.MinNotice)

	slots := []model.TimeSlot{}
	for _, sc := range schedules {
		if !sc.AppliesTo(serviceTypeID) {
			continue
		}
		if sc.SlotDurationMinutes <= 0 {
			s.logger.Warn(nil, "skipping schedule with non-positive slot duration", "schedule_id", sc.ID.String())
			continue
		}
		start, end, err := sc.Bounds(dayStart, loc)
		if err != nil {
			s.logger.Warn(err, "skipping malformed schedule", "schedule_id", sc.ID.String())
			continue
		}
		step := time.Duration(sc.SlotDurationMinutes) * time.Minute
		for t := start; !t.Add(step).After(end); t = t.Add(step) {
			_, isTaken := taken[t.UnixNano()]
			slots = append(slots, model.TimeSlot{
				Time:          t,
				Available:     !isTaken && !t.Before(cutoff),
				ProviderID:    providerID,
				ServiceTypeID: sc.ServiceTypeID,
			})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Time.Before(slots[j].Time) })
	return slots, nil
}

func (s *Service) resolveLocation(ctx context.Context, providerID uuid.UUID, tz string) (*time.Location, error) {
	if tz != "" {
		return loadLocation(tz)
	}
	provider, err := s.directory.GetProvider(ctx, providerID)
	if err != nil {
		return nil, lookupError(err, "provider", providerID)
	}
	clinic, err := s.directory.GetClinic(ctx, provider.ClinicID)
	if err != nil {
		return nil, lookupError(err, "clinic", provider.ClinicID)
	}
	return loadLocation(clinic.Timezone)
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown timezone %q", tz), err)
	}
	return loc, nil
}

func parseDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateFormat, date, loc)
	if err != nil {
		return time.Time{}, apperrors.NewValidation(fmt.Sprintf("invalid date %q", date), err)
	}
	return d, nil
}

func lookupError(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(entity, id.String())
	}
	return apperrors.NewTransient("load "+entity, err)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
