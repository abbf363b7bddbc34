package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/validator"
)

// Invalidator is the part of the availability calculator that must hear
// about schedule changes.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID uuid.UUID, at time.Time)
	InvalidateProvider(ctx context.Context, providerID uuid.UUID)
}

type ScheduleServicer interface {
	ListSchedules(ctx context.Context, providerID uuid.UUID) ([]*model.ProviderSchedule, error)
	ReplaceSchedules(ctx context.Context, providerID uuid.UUID, req *model.ReplaceSchedulesRequest, actor model.Actor) ([]*model.ProviderSchedule, error)
	BlockSlot(ctx context.Context, providerID uuid.UUID, req *model.BlockSlotRequest, actor model.Actor) (*model.BlockedSlot, error)
	UnblockSlot(ctx context.Context, providerID uuid.UUID, at time.Time, actor model.Actor) error
}

type Service struct {
	txm          repository.TxManager
	schedules    repository.ScheduleRepository
	directory    repository.DirectoryRepository
	availability Invalidator
	schema       validator.Validator
	logger       *logger.Logger
}

func NewService(
	txm repository.TxManager,
	schedules repository.ScheduleRepository,
	directory repository.DirectoryRepository,
	availability Invalidator,
	schema validator.Validator,
	log *logger.Logger,
) *Service {
	if schema == nil {
		schema = validator.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		txm:          txm,
		schedules:    schedules,
		directory:    directory,
		availability: availability,
		schema:       schema,
		logger:       log,
	}
}

func (s *Service) ListSchedules(ctx context.Context, providerID uuid.UUID) ([]*model.ProviderSchedule, error) {
	if _, err := s.provider(ctx, providerID); err != nil {
		return nil, err
	}
	out, err := s.schedules.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, apperrors.NewTransient("list schedules", err)
	}
	return out, nil
}

// ReplaceSchedules deactivates every window of the provider and installs
// the given ones in a single transaction.
func (s *Service) ReplaceSchedules(ctx context.Context, providerID uuid.UUID, req *model.ReplaceSchedulesRequest, actor model.Actor) ([]*model.ProviderSchedule, error) {
	if err := authorize(providerID, actor); err != nil {
		return nil, err
	}
	if err := s.schema.Validate(req); err != nil {
		return nil, apperrors.NewValidation("invalid schedule", err)
	}
	if _, err := s.provider(ctx, providerID); err != nil {
		return nil, err
	}

	windows := make([]*model.ProviderSchedule, 0, len(req.Windows))
	for i, w := range req.Windows {
		if w.EndTime <= w.StartTime {
			return nil, apperrors.NewValidation(fmt.Sprintf("window %d ends before it starts", i), nil)
		}
		windows = append(windows, &model.ProviderSchedule{
			ProviderID:          providerID,
			DayOfWeek:           time.Weekday(w.DayOfWeek),
			StartTime:           w.StartTime,
			EndTime:             w.EndTime,
			SlotDurationMinutes: w.SlotDurationMinutes,
			ServiceTypeID:       w.ServiceTypeID,
			IsActive:            true,
		})
	}

	err := s.txm.WithTx(ctx, func(ctx context.Context) error {
		if err := s.schedules.DeactivateAll(ctx, providerID); err != nil {
			return err
		}
		for _, w := range windows {
			if err := s.schedules.Create(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error(err, "failed to replace schedules", "provider_id", providerID.String())
		return nil, apperrors.NewTransient("replace schedules", err)
	}

	s.availability.InvalidateProvider(ctx, providerID)
	s.logger.Info("schedules replaced", "provider_id", providerID.String(), "windows", len(windows))
	return windows, nil
}

func (s *Service) BlockSlot(ctx context.Context, providerID uuid.UUID, req *model.BlockSlotRequest, actor model.Actor) (*model.BlockedSlot, error) {
	if err := authorize(providerID, actor); err != nil {
		return nil, err
	}
	if err := s.schema.Validate(req); err != nil {
		return nil, apperrors.NewValidation("invalid blocked slot", err)
	}
	if _, err := s.provider(ctx, providerID); err != nil {
		return nil, err
	}

	slot := &model.BlockedSlot{
		ProviderID: providerID,
		BlockedAt:  req.BlockedAt.UTC(),
		Reason:     req.Reason,
	}
	err := s.schedules.CreateBlocked(ctx, slot)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperrors.NewConflict("blocked_slot", slot.BlockedAt.Format(time.RFC3339), "slot is already blocked")
	case err != nil:
		return nil, apperrors.NewTransient("block slot", err)
	}

	s.availability.Invalidate(ctx, providerID, slot.BlockedAt)
	return slot, nil
}

func (s *Service) UnblockSlot(ctx context.Context, providerID uuid.UUID, at time.Time, actor model.Actor) error {
	if err := authorize(providerID, actor); err != nil {
		return err
	}
	err := s.schedules.DeleteBlocked(ctx, providerID, at.UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("blocked_slot", at.UTC().Format(time.RFC3339))
	case err != nil:
		return apperrors.NewTransient("unblock slot", err)
	}

	s.availability.Invalidate(ctx, providerID, at)
	return nil
}

func (s *Service) provider(ctx context.Context, providerID uuid.UUID) (*model.Provider, error) {
	p, err := s.directory.GetProvider(ctx, providerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("provider", providerID.String())
	}
	if err != nil {
		return nil, apperrors.NewTransient("load provider", err)
	}
	return p, nil
}

// authorize admits the provider itself and clinic staff.
func authorize(providerID uuid.UUID, actor model.Actor) error {
	if actor.Privileged() || (actor.Role == model.RoleProvider && actor.SubjectID == providerID) {
		return nil
	}
	return apperrors.NewAuthorization("provider", providerID.String(), "only the provider or clinic staff may manage schedules")
}
