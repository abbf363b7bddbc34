package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a write violates a uniqueness constraint,
// such as two active bookings for the same provider and start time.
var ErrDuplicate = errors.New("duplicate record")

// All repository interfaces in one file
type (
	// TxManager runs fn in one transaction. Repositories called with the
	// ctx passed to fn join that transaction.
	TxManager interface {
		WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	BookingRepository interface {
		Create(ctx context.Context, booking *model.Booking) error
		CreateReference(ctx context.Context, ref *model.BookingReference) error
		Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
		GetDetails(ctx context.Context, id uuid.UUID) (*model.BookingDetails, error)
		Update(ctx context.Context, booking *model.Booking) error
		// Cancel moves a non-terminal booking to cancelled. It returns
		// ErrNotFound when no non-terminal booking with that id exists.
		Cancel(ctx context.Context, booking *model.Booking) error
		// UpdateStatus moves a booking from one status to another and
		// returns ErrNotFound if it is not currently in from.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus) error
		ExistsActiveAt(ctx context.Context, providerID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error)
		ListActiveForProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Booking, error)
		List(ctx context.Context, filters *model.BookingFilters) ([]*model.BookingDetails, int, error)
		CreateCancellationFee(ctx context.Context, fee *model.CancellationFee) error
	}

	ScheduleRepository interface {
		ListActive(ctx context.Context, providerID uuid.UUID, day time.Weekday) ([]*model.ProviderSchedule, error)
		ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.ProviderSchedule, error)
		DeactivateAll(ctx context.Context, providerID uuid.UUID) error
		Create(ctx context.Context, schedule *model.ProviderSchedule) error
		ListBlocked(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.BlockedSlot, error)
		IsBlocked(ctx context.Context, providerID uuid.UUID, at time.Time) (bool, error)
		CreateBlocked(ctx context.Context, slot *model.BlockedSlot) error
		DeleteBlocked(ctx context.Context, providerID uuid.UUID, at time.Time) error
	}

	// DirectoryRepository reads the reference data bookings point at.
	DirectoryRepository interface {
		GetClinic(ctx context.Context, id uuid.UUID) (*model.Clinic, error)
		GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error)
		ListActiveProviders(ctx context.Context, clinicID uuid.UUID) ([]*model.Provider, error)
		ProviderOffersService(ctx context.Context, providerID, serviceTypeID uuid.UUID) (bool, error)
		GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetServiceType(ctx context.Context, id uuid.UUID) (*model.ServiceType, error)
		GetInsurance(ctx context.Context, id uuid.UUID) (*model.Insurance, error)
		GetPaymentMethod(ctx context.Context, id uuid.UUID) (*model.PaymentMethod, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// RateLimitRepository is the durable fallback counter store.
	RateLimitRepository interface {
		IncrementAndGet(ctx context.Context, key string, expiresAt time.Time) (int64, error)
		DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	}
)
