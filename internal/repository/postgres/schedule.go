package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

const scheduleColumns = `id, provider_id, day_of_week, start_time, end_time,
	slot_duration_minutes, service_type_id, is_active, created_at, updated_at`

type scheduleRepository struct {
	BaseRepository
}

func NewScheduleRepository(base BaseRepository) repository.ScheduleRepository {
	return &scheduleRepository{base}
}

func (r *scheduleRepository) ListActive(ctx context.Context, providerID uuid.UUID, day time.Weekday) ([]*model.ProviderSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM provider_schedules
		WHERE provider_id = $1 AND day_of_week = $2 AND is_active
		ORDER BY start_time ASC
	`
	var schedules []*model.ProviderSchedule
	if err := r.conn(ctx).SelectContext(ctx, &schedules, query, providerID, int(day)); err != nil {
		return nil, mapError(err, "list active schedules")
	}
	return schedules, nil
}

func (r *scheduleRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.ProviderSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM provider_schedules
		WHERE provider_id = $1 AND is_active
		ORDER BY day_of_week ASC, start_time ASC
	`
	var schedules []*model.ProviderSchedule
	if err := r.conn(ctx).SelectContext(ctx, &schedules, query, providerID); err != nil {
		return nil, mapError(err, "list schedules")
	}
	return schedules, nil
}

func (r *scheduleRepository) DeactivateAll(ctx context.Context, providerID uuid.UUID) error {
	query := `UPDATE provider_schedules SET is_active = FALSE, updated_at = NOW() WHERE provider_id = $1 AND is_active`
	_, err := r.conn(ctx).ExecContext(ctx, query, providerID)
	return mapError(err, "deactivate schedules")
}

func (r *scheduleRepository) Create(ctx context.Context, s *model.ProviderSchedule) error {
	query := `
		INSERT INTO provider_schedules (
			id, provider_id, day_of_week, start_time, end_time,
			slot_duration_minutes, service_type_id, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		s.ID,
		s.ProviderID,
		int(s.DayOfWeek),
		s.StartTime,
		s.EndTime,
		s.SlotDurationMinutes,
		s.ServiceTypeID,
		s.IsActive,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return mapError(err, "create schedule")
}

func (r *scheduleRepository) ListBlocked(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.BlockedSlot, error) {
	query := `
		SELECT id, provider_id, blocked_at, reason, created_at
		FROM blocked_slots
		WHERE provider_id = $1 AND blocked_at >= $2 AND blocked_at < $3
		ORDER BY blocked_at ASC
	`
	var slots []*model.BlockedSlot
	if err := r.conn(ctx).SelectContext(ctx, &slots, query, providerID, from, to); err != nil {
		return nil, mapError(err, "list blocked slots")
	}
	return slots, nil
}

func (r *scheduleRepository) IsBlocked(ctx context.Context, providerID uuid.UUID, at time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM blocked_slots WHERE provider_id = $1 AND blocked_at = $2)`
	var blocked bool
	if err := r.conn(ctx).GetContext(ctx, &blocked, query, providerID, at); err != nil {
		return false, mapError(err, "check blocked slot")
	}
	return blocked, nil
}

func (r *scheduleRepository) CreateBlocked(ctx context.Context, slot *model.BlockedSlot) error {
	query := `
		INSERT INTO blocked_slots (id, provider_id, blocked_at, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	slot.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).ExecContext(ctx, query, slot.ID, slot.ProviderID, slot.BlockedAt, slot.Reason, slot.CreatedAt)
	return mapError(err, "block slot")
}

func (r *scheduleRepository) DeleteBlocked(ctx context.Context, providerID uuid.UUID, at time.Time) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`DELETE FROM blocked_slots WHERE provider_id = $1 AND blocked_at = $2`, providerID, at)
	if err != nil {
		return mapError(err, "unblock slot")
	}
	return expectRow(res, "unblock slot")
}
