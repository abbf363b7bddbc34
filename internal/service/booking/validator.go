package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/clock"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/validator"
)

const (
	DefaultMinLeadTime   = time.Hour
	DefaultMaxLeadMonths = 3
)

const (
	entityBooking       = "booking"
	entityProvider      = "provider"
	entityPatient       = "patient"
	entityServiceType   = "service_type"
	entityClinic        = "clinic"
	entityInsurance     = "insurance"
	entityPaymentMethod = "payment_method"
)

// SlotChecker is the availability check shared with the calculator.
type SlotChecker interface {
	CheckSlot(ctx context.Context, providerID, serviceTypeID uuid.UUID, at time.Time, loc *time.Location, excludeBookingID *uuid.UUID) error
}

type ValidatorConfig struct {
	MinLeadTime   time.Duration
	MaxLeadMonths int
}

type Validator struct {
	schema    validator.Validator
	directory repository.DirectoryRepository
	bookings  repository.BookingRepository
	slots     SlotChecker
	clock     clock.Clock
	cfg       ValidatorConfig
}

func NewValidator(
	schema validator.Validator,
	directory repository.DirectoryRepository,
	bookings repository.BookingRepository,
	slots SlotChecker,
	clk clock.Clock,
	cfg ValidatorConfig,
) *Validator {
	if cfg.MinLeadTime <= 0 {
		cfg.MinLeadTime = DefaultMinLeadTime
	}
	if cfg.MaxLeadMonths <= 0 {
		cfg.MaxLeadMonths = DefaultMaxLeadMonths
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if schema == nil {
		schema = validator.New()
	}
	return &Validator{
		schema:    schema,
		directory: directory,
		bookings:  bookings,
		slots:     slots,
		clock:     clk,
		cfg:       cfg,
	}
}

// ValidatedCreate carries the reference data loaded during validation so the
// caller does not read it twice.
type ValidatedCreate struct {
	Provider    *model.Provider
	Patient     *model.Patient
	Clinic      *model.Clinic
	ServiceType *model.ServiceType
	Insurance   *model.Insurance
}

type ValidatedUpdate struct {
	Booking     *model.Booking
	Clinic      *model.Clinic
	ServiceType *model.ServiceType
	Rescheduled bool
}

// CancellationDecision tells the caller which penalty, if any, the clinic
// policy imposes.
type CancellationDecision struct {
	Booking           *model.Booking
	HoursUntil        float64
	PenaltyPercentage float64
}

func (v *Validator) ValidateCreate(ctx context.Context, req *model.CreateBookingRequest) (*ValidatedCreate, error) {
	if err := v.schema.Validate(req); err != nil {
		return nil, apperrors.NewValidation("invalid booking request", err)
	}

	provider, clinic, loc, err := v.loadProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	patient, err := v.directory.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, lookupError(err, entityPatient, req.PatientID)
	}
	if !patient.IsActive {
		return nil, apperrors.NewNotActive(entityPatient, req.PatientID.String())
	}

	svc, err := v.loadOfferedService(ctx, req.ProviderID, req.ServiceTypeID)
	if err != nil {
		return nil, err
	}

	if err := v.slots.CheckSlot(ctx, req.ProviderID, req.ServiceTypeID, req.ScheduledAt, loc, nil); err != nil {
		return nil, err
	}
	if err := v.checkWindow(req.ScheduledAt); err != nil {
		return nil, err
	}

	if req.PaymentMethodID != nil {
		pm, err := v.directory.GetPaymentMethod(ctx, *req.PaymentMethodID)
		if err != nil {
			return nil, lookupError(err, entityPaymentMethod, *req.PaymentMethodID)
		}
		if pm.PatientID != req.PatientID {
			return nil, apperrors.NewValidation("payment method does not belong to patient", nil).
				WithEntity(entityPaymentMethod, pm.ID.String())
		}
	}

	var insurance *model.Insurance
	if req.InsuranceID != nil {
		insurance, err = v.directory.GetInsurance(ctx, *req.InsuranceID)
		if err != nil {
			return nil, lookupError(err, entityInsurance, *req.InsuranceID)
		}
		if insurance.PatientID != req.PatientID {
			return nil, apperrors.NewValidation("insurance does not belong to patient", nil).
				WithEntity(entityInsurance, insurance.ID.String())
		}
		if insurance.Expired(v.clock.Now()) {
			return nil, apperrors.NewValidation("insurance has expired", nil).
				WithEntity(entityInsurance, insurance.ID.String())
		}
	}

	return &ValidatedCreate{
		Provider:    provider,
		Patient:     patient,
		Clinic:      clinic,
		ServiceType: svc,
		Insurance:   insurance,
	}, nil
}

func (v *Validator) ValidateUpdate(ctx context.Context, bookingID uuid.UUID, req *model.UpdateBookingRequest) (*ValidatedUpdate, error) {
	if req.Empty() {
		return nil, apperrors.NewValidation("at least one field must be updated", nil)
	}
	if err := v.schema.Validate(req); err != nil {
		return nil, apperrors.NewValidation("invalid update request", err)
	}

	b, err := v.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, lookupError(err, entityBooking, bookingID)
	}
	_, clinic, loc, err := v.loadProvider(ctx, b.ProviderID)
	if err != nil {
		return nil, err
	}

	out := &ValidatedUpdate{Booking: b, Clinic: clinic}

	serviceTypeID := b.ServiceTypeID
	serviceChanged := req.ServiceTypeID != nil && *req.ServiceTypeID != b.ServiceTypeID
	if serviceChanged {
		serviceTypeID = *req.ServiceTypeID
		out.ServiceType, err = v.loadOfferedService(ctx, b.ProviderID, serviceTypeID)
		if err != nil {
			return nil, err
		}
	}

	at := b.ScheduledAt
	if req.ScheduledAt != nil && !req.ScheduledAt.Equal(b.ScheduledAt) {
		at = *req.ScheduledAt
		out.Rescheduled = true
		if err := v.checkWindow(at); err != nil {
			return nil, err
		}
	}

	if out.Rescheduled || serviceChanged {
		if err := v.slots.CheckSlot(ctx, b.ProviderID, serviceTypeID, at, loc, &b.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (v *Validator) ValidateCancellation(ctx context.Context, bookingID uuid.UUID, actor model.Actor) (*CancellationDecision, error) {
	b, err := v.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, lookupError(err, entityBooking, bookingID)
	}

	isPatient := actor.Role == model.RolePatient && actor.SubjectID == b.PatientID
	isProvider := actor.Role == model.RoleProvider && actor.SubjectID == b.ProviderID
	if !isPatient && !isProvider {
		return nil, apperrors.NewAuthorization(entityBooking, bookingID.String(),
			"only the booking's patient or provider may cancel it")
	}

	if b.Status.Terminal() {
		return nil, apperrors.NewInvalidState(entityBooking, bookingID.String(),
			"booking is "+string(b.Status)+" and cannot be cancelled")
	}

	_, clinic, _, err := v.loadProvider(ctx, b.ProviderID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotActive) {
		return nil, err
	}

	decision := &CancellationDecision{
		Booking:    b,
		HoursUntil: b.ScheduledAt.Sub(v.clock.Now()).Hours(),
	}
	if clinic != nil && decision.HoursUntil < clinic.MinimumNoticeHours {
		decision.PenaltyPercentage = clinic.PenaltyPercentage
	}
	return decision, nil
}

// checkWindow enforces MinLeadTime <= at - now <= MaxLeadMonths.
func (v *Validator) checkWindow(at time.Time) error {
	now := v.clock.Now()
	if at.Sub(now) < v.cfg.MinLeadTime {
		return apperrors.NewOutOfWindow("bookings must be made at least " + v.cfg.MinLeadTime.String() + " in advance")
	}
	if at.After(now.AddDate(0, v.cfg.MaxLeadMonths, 0)) {
		return apperrors.NewOutOfWindow("bookings cannot be made that far in advance")
	}
	return nil
}

// loadProvider returns the active provider, its clinic and the clinic's
// location. An inactive provider still yields the clinic alongside the error.
func (v *Validator) loadProvider(ctx context.Context, providerID uuid.UUID) (*model.Provider, *model.Clinic, *time.Location, error) {
	provider, err := v.directory.GetProvider(ctx, providerID)
	if err != nil {
		return nil, nil, nil, lookupError(err, entityProvider, providerID)
	}
	clinic, err := v.directory.GetClinic(ctx, provider.ClinicID)
	if err != nil {
		return nil, nil, nil, lookupError(err, entityClinic, provider.ClinicID)
	}
	loc, err := clinic.Location()
	if err != nil {
		return nil, nil, nil, apperrors.NewValidation("clinic timezone is invalid", err).
			WithEntity(entityClinic, clinic.ID.String())
	}
	if !provider.IsActive {
		return provider, clinic, loc, apperrors.NewNotActive(entityProvider, providerID.String())
	}
	return provider, clinic, loc, nil
}

func (v *Validator) loadOfferedService(ctx context.Context, providerID, serviceTypeID uuid.UUID) (*model.ServiceType, error) {
	svc, err := v.directory.GetServiceType(ctx, serviceTypeID)
	if err != nil {
		return nil, lookupError(err, entityServiceType, serviceTypeID)
	}
	if !svc.IsActive {
		return nil, apperrors.NewNotActive(entityServiceType, serviceTypeID.String())
	}
	offered, err := v.directory.ProviderOffersService(ctx, providerID, serviceTypeID)
	if err != nil {
		return nil, apperrors.NewTransient("check provider service", err)
	}
	if !offered {
		return nil, apperrors.NewValidation("provider does not offer this service", nil).
			WithEntity(entityServiceType, serviceTypeID.String())
	}
	return svc, nil
}

func lookupError(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(entity, id.String())
	}
	return apperrors.NewTransient("load "+entity, err)
}
