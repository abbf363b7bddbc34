package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type scheduleRepository struct {
	s *Store
}

func sortSchedules(out []*model.ProviderSchedule) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID.String() < out[j].ID.String()
	})
}

func (r *scheduleRepository) ListActive(ctx context.Context, providerID uuid.UUID, day time.Weekday) ([]*model.ProviderSchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.ProviderSchedule
	for _, sc := range r.s.data.schedules {
		if sc.ProviderID == providerID && sc.DayOfWeek == day && sc.IsActive {
			sc := sc
			out = append(out, &sc)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (r *scheduleRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.ProviderSchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.ProviderSchedule
	for _, sc := range r.s.data.schedules {
		if sc.ProviderID == providerID && sc.IsActive {
			sc := sc
			out = append(out, &sc)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (r *scheduleRepository) DeactivateAll(ctx context.Context, providerID uuid.UUID) error {
	defer r.s.lock(ctx)()
	for id, sc := range r.s.data.schedules {
		if sc.ProviderID == providerID && sc.IsActive {
			sc.IsActive = false
			sc.UpdatedAt = time.Now().UTC()
			r.s.data.schedules[id] = sc
		}
	}
	return nil
}

func (r *scheduleRepository) Create(ctx context.Context, sc *model.ProviderSchedule) error {
	ensureBase(&sc.Base)
	defer r.s.lock(ctx)()
	r.s.data.schedules[sc.ID] = *sc
	return nil
}

func (r *scheduleRepository) ListBlocked(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.BlockedSlot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.BlockedSlot
	for _, b := range r.s.data.blocked {
		if b.ProviderID != providerID || b.BlockedAt.Before(from) || !b.BlockedAt.Before(to) {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.Before(out[j].BlockedAt) })
	return out, nil
}

func (r *scheduleRepository) IsBlocked(ctx context.Context, providerID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, b := range r.s.data.blocked {
		if b.ProviderID == providerID && b.BlockedAt.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func (r *scheduleRepository) CreateBlocked(ctx context.Context, slot *model.BlockedSlot) error {
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	slot.CreatedAt = time.Now().UTC()
	defer r.s.lock(ctx)()
	for _, b := range r.s.data.blocked {
		if b.ProviderID == slot.ProviderID && b.BlockedAt.Equal(slot.BlockedAt) {
			return repository.ErrDuplicate
		}
	}
	r.s.data.blocked[slot.ID] = *slot
	return nil
}

func (r *scheduleRepository) DeleteBlocked(ctx context.Context, providerID uuid.UUID, at time.Time) error {
	defer r.s.lock(ctx)()
	for id, b := range r.s.data.blocked {
		if b.ProviderID == providerID && b.BlockedAt.Equal(at) {
			delete(r.s.data.blocked, id)
			return nil
		}
	}
	return repository.ErrNotFound
}
