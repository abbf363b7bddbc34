package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/service/notification"
	"github.com/jwalitptl/booking-api/pkg/clock"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

const (
	DefaultBookingCacheTTL = 10 * time.Minute
	DefaultListCacheTTL    = 2 * time.Minute
)

// Invalidator drops cached availability around a changed booking.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID uuid.UUID, at time.Time)
}

type BookingServicer interface {
	Create(ctx context.Context, req *model.CreateBookingRequest, actor model.Actor) (*model.BookingDetails, error)
	Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.BookingDetails, error)
	List(ctx context.Context, actor model.Actor, filters model.BookingFilters) (*model.BookingPage, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdateBookingRequest, actor model.Actor) (*model.BookingDetails, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (*CancelResult, error)
	Confirm(ctx context.Context, id uuid.UUID, actor model.Actor) error
	Complete(ctx context.Context, id uuid.UUID, actor model.Actor) error
	MarkNoShow(ctx context.Context, id uuid.UUID, actor model.Actor) error
}

type Config struct {
	BookingCacheTTL time.Duration
	ListCacheTTL    time.Duration
}

type CancelResult struct {
	Booking *model.Booking         `json:"booking"`
	Fee     *model.CancellationFee `json:"fee,omitempty"`
}

type Service struct {
	txm          repository.TxManager
	bookings     repository.BookingRepository
	validator    *Validator
	availability Invalidator
	notifier     notification.Service
	cache        cache.Cache
	clock        clock.Clock
	logger       *logger.Logger
	metrics      *metrics.Metrics
	cfg          Config

	// pending tracks post-commit side effects still running.
	pending sync.WaitGroup
}

func NewService(
	txm repository.TxManager,
	bookings repository.BookingRepository,
	validator *Validator,
	availability Invalidator,
	notifier notification.Service,
	c cache.Cache,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.BookingCacheTTL <= 0 {
		cfg.BookingCacheTTL = DefaultBookingCacheTTL
	}
	if cfg.ListCacheTTL <= 0 {
		cfg.ListCacheTTL = DefaultListCacheTTL
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		txm:          txm,
		bookings:     bookings,
		validator:    validator,
		availability: availability,
		notifier:     notifier,
		cache:        c,
		clock:        clk,
		logger:       log,
		metrics:      m,
		cfg:          cfg,
	}
}

// Wait blocks until every post-commit side effect has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) Create(ctx context.Context, req *model.CreateBookingRequest, actor model.Actor) (*model.BookingDetails, error) {
	out, err := s.create(ctx, req, actor)
	s.record("create", err)
	return out, err
}

func (s *Service) create(ctx context.Context, req *model.CreateBookingRequest, actor model.Actor) (*model.BookingDetails, error) {
	if !actor.Privileged() && !(actor.Role == model.RolePatient && actor.SubjectID == req.PatientID) {
		return nil, apperrors.NewAuthorization(entityPatient, req.PatientID.String(),
			"patients may only book for themselves")
	}

	v, err := s.validator.ValidateCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	covered, patientPays := splitPrice(v.ServiceType, v.Insurance)
	b := &model.Booking{
		PatientID:              req.PatientID,
		ProviderID:             req.ProviderID,
		ServiceTypeID:          req.ServiceTypeID,
		ScheduledAt:            req.ScheduledAt.UTC(),
		DurationMinutes:        v.ServiceType.DurationMinutes,
		Status:                 model.BookingStatusPending,
		TotalAmount:            v.ServiceType.Price,
		InsuranceCoveredAmount: covered,
		PatientPaymentAmount:   patientPays,
		InsuranceID:            req.InsuranceID,
		PaymentMethodID:        req.PaymentMethodID,
		Notes:                  req.Notes,
	}
	b.ID = uuid.New()
	ref := &model.BookingReference{
		BookingID:     b.ID,
		ReferenceCode: newReferenceCode(),
		CheckInToken:  uuid.New(),
	}

	err = s.txm.WithTx(ctx, func(ctx context.Context) error {
		if err := s.bookings.Create(ctx, b); err != nil {
			return err
		}
		return s.bookings.CreateReference(ctx, ref)
	})
	if err != nil {
		return nil, s.writeError(ctx, "create booking", b, err)
	}

	s.logger.Ctx(ctx).Info("booking created",
		"booking_id", b.ID.String(),
		"provider_id", b.ProviderID.String(),
		"scheduled_at", b.ScheduledAt.Format(time.RFC3339))

	s.invalidateBooking(ctx, b)
	booking := *b
	s.afterCommit(ctx, "create", func(ctx context.Context) {
		s.availability.Invalidate(ctx, booking.ProviderID, booking.ScheduledAt)
		if err := s.notifier.SendBookingConfirmation(ctx, &booking, ref.ReferenceCode); err != nil {
			s.logger.Ctx(ctx).Warn(err, "failed to queue booking confirmation", "booking_id", booking.ID.String())
		}
	})

	return &model.BookingDetails{
		Booking:         *b,
		ReferenceCode:   ref.ReferenceCode,
		PatientName:     v.Patient.Name,
		ProviderName:    v.Provider.Name,
		ServiceTypeName: v.ServiceType.Name,
		ClinicID:        v.Clinic.ID,
		ClinicName:      v.Clinic.Name,
	}, nil
}

// splitPrice divides the service price between insurance and patient. The
// two parts always sum to the price.
func splitPrice(svc *model.ServiceType, ins *model.Insurance) (covered, patientPays int64) {
	total := svc.Price
	if ins != nil && svc.InsuranceEligible {
		covered = int64(math.Round(float64(total) * ins.CoveragePercentage / 100))
		if covered < 0 {
			covered = 0
		}
		if covered > total {
			covered = total
		}
	}
	return covered, total - covered
}

func newReferenceCode() string {
	return "BK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// Get returns nil without error when the booking does not exist or the
// actor may not see it. Cached copies are re-authorized on every read.
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.BookingDetails, error) {
	key := bookingKey(id)
	if s.cache != nil {
		var cached model.BookingDetails
		err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err == nil {
			if !canView(actor, &cached.Booking) {
				return nil, nil
			}
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Debug("booking cache read failed", "key", key, "error", err.Error())
		}
	}

	d, err := s.bookings.GetDetails(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewTransient("get booking", err)
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, d, s.cfg.BookingCacheTTL); err != nil {
			s.logger.Debug("booking cache write failed", "key", key, "error", err.Error())
		}
	}

	if !canView(actor, &d.Booking) {
		return nil, nil
	}
	return d, nil
}

func canView(actor model.Actor, b *model.Booking) bool {
	switch actor.Role {
	case model.RoleStaff, model.RoleAdmin:
		return true
	case model.RolePatient:
		return actor.SubjectID == b.PatientID
	case model.RoleProvider:
		return actor.SubjectID == b.ProviderID
	}
	return false
}

// List scopes the query to the actor: patients see their bookings,
// providers the ones assigned to them.
func (s *Service) List(ctx context.Context, actor model.Actor, f model.BookingFilters) (*model.BookingPage, error) {
	switch actor.Role {
	case model.RolePatient:
		f.PatientID = &actor.SubjectID
	case model.RoleProvider:
		f.ProviderID = &actor.SubjectID
	case model.RoleStaff, model.RoleAdmin:
	default:
		return nil, apperrors.NewAuthorization(entityBooking, "", "unknown role")
	}
	f.Pagination = f.Pagination.Normalize()

	key, cacheable := s.listKey(ctx, actor, &f)
	if cacheable {
		var cached model.BookingPage
		err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Debug("booking list cache read failed", "key", key, "error", err.Error())
		}
	}

	items, total, err := s.bookings.List(ctx, &f)
	if err != nil {
		return nil, apperrors.NewTransient("list bookings", err)
	}
	if items == nil {
		items = []*model.BookingDetails{}
	}
	page := &model.BookingPage{Items: items, Total: total, Page: f.Page, Limit: f.Limit}

	if cacheable {
		if err := cache.SetJSON(ctx, s.cache, key, page, s.cfg.ListCacheTTL); err != nil {
			s.logger.Debug("booking list cache write failed", "key", key, "error", err.Error())
		}
	}
	return page, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateBookingRequest, actor model.Actor) (*model.BookingDetails, error) {
	out, err := s.update(ctx, id, req, actor)
	s.record("update", err)
	return out, err
}

func (s *Service) update(ctx context.Context, id uuid.UUID, req *model.UpdateBookingRequest, actor model.Actor) (*model.BookingDetails, error) {
	current, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, lookupError(err, entityBooking, id)
	}
	if !canView(actor, current) {
		return nil, apperrors.NewAuthorization(entityBooking, id.String(), "not a party to this booking")
	}
	if current.Status.Terminal() {
		return nil, apperrors.NewInvalidState(entityBooking, id.String(),
			"booking is "+string(current.Status)+" and cannot be changed")
	}

	v, err := s.validator.ValidateUpdate(ctx, id, req)
	if err != nil {
		return nil, err
	}

	b := v.Booking
	previous := b.ScheduledAt
	if v.Rescheduled {
		b.ScheduledAt = req.ScheduledAt.UTC()
	}
	if v.ServiceType != nil {
		b.ServiceTypeID = v.ServiceType.ID
		b.DurationMinutes = v.ServiceType.DurationMinutes
	}
	if req.Notes != nil {
		b.Notes = *req.Notes
	}

	err = s.txm.WithTx(ctx, func(ctx context.Context) error {
		return s.bookings.Update(ctx, b)
	})
	if err != nil {
		return nil, s.writeError(ctx, "update booking", b, err)
	}

	s.logger.Ctx(ctx).Info("booking updated", "booking_id", id.String(), "rescheduled", v.Rescheduled)

	s.invalidateBooking(ctx, b)
	booking := *b
	rescheduled := v.Rescheduled
	s.afterCommit(ctx, "update", func(ctx context.Context) {
		s.availability.Invalidate(ctx, booking.ProviderID, booking.ScheduledAt)
		if !rescheduled {
			return
		}
		s.availability.Invalidate(ctx, booking.ProviderID, previous)
		if err := s.notifier.SendBookingUpdate(ctx, &booking, previous); err != nil {
			s.logger.Ctx(ctx).Warn(err, "failed to queue reschedule notification", "booking_id", booking.ID.String())
		}
	})

	d, err := s.bookings.GetDetails(ctx, id)
	if err != nil {
		return nil, apperrors.NewTransient("get booking", err)
	}
	return d, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (*CancelResult, error) {
	out, err := s.cancel(ctx, id, reason, actor)
	s.record("cancel", err)
	return out, err
}

func (s *Service) cancel(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (*CancelResult, error) {
	decision, err := s.validator.ValidateCancellation(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	role := actor.Role
	b := decision.Booking
	b.CancellationReason = &reason
	b.CancelledBy = &actor.SubjectID
	b.CancelledByRole = &role
	b.CancelledAt = &now

	var fee *model.CancellationFee
	if decision.PenaltyPercentage > 0 {
		fee = &model.CancellationFee{
			BookingID:         b.ID,
			Amount:            int64(math.Round(float64(b.PatientPaymentAmount) * decision.PenaltyPercentage / 100)),
			PenaltyPercentage: decision.PenaltyPercentage,
			Status:            model.CancellationFeePending,
		}
	}

	err = s.txm.WithTx(ctx, func(ctx context.Context) error {
		if err := s.bookings.Cancel(ctx, b); err != nil {
			return err
		}
		if fee != nil {
			return s.bookings.CreateCancellationFee(ctx, fee)
		}
		return nil
	})
	if err != nil {
		return nil, s.writeError(ctx, "cancel booking", b, err)
	}
	b.UpdatedAt = now

	fields := []interface{}{"booking_id", id.String(), "cancelled_by_role", string(role)}
	if fee != nil {
		fields = append(fields, "fee_amount", fee.Amount)
	}
	s.logger.Ctx(ctx).Info("booking cancelled", fields...)

	s.invalidateBooking(ctx, b)
	booking := *b
	s.afterCommit(ctx, "cancel", func(ctx context.Context) {
		s.availability.Invalidate(ctx, booking.ProviderID, booking.ScheduledAt)
		if err := s.notifier.SendBookingCancellation(ctx, &booking, fee); err != nil {
			s.logger.Ctx(ctx).Warn(err, "failed to queue cancellation notification", "booking_id", booking.ID.String())
		}
	})

	return &CancelResult{Booking: b, Fee: fee}, nil
}

// Confirm moves a pending booking to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor model.Actor) error {
	err := s.transition(ctx, id, actor, model.BookingStatusPending, model.BookingStatusConfirmed)
	s.record("confirm", err)
	return err
}

// Complete moves a confirmed booking to completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor model.Actor) error {
	err := s.transition(ctx, id, actor, model.BookingStatusConfirmed, model.BookingStatusCompleted)
	s.record("complete", err)
	return err
}

// MarkNoShow moves a confirmed booking to no_show.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor model.Actor) error {
	err := s.transition(ctx, id, actor, model.BookingStatusConfirmed, model.BookingStatusNoShow)
	s.record("no_show", err)
	return err
}

// transition applies a provider or staff status change.
func (s *Service) transition(ctx context.Context, id uuid.UUID, actor model.Actor, from, to model.BookingStatus) error {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		return lookupError(err, entityBooking, id)
	}
	if !actor.Privileged() && !(actor.Role == model.RoleProvider && actor.SubjectID == b.ProviderID) {
		return apperrors.NewAuthorization(entityBooking, id.String(), "only the assigned provider or clinic staff may change status")
	}
	if b.Status != from {
		return apperrors.NewInvalidState(entityBooking, id.String(),
			fmt.Sprintf("cannot move booking from %s to %s", b.Status, to))
	}

	err = s.txm.WithTx(ctx, func(ctx context.Context) error {
		return s.bookings.UpdateStatus(ctx, id, from, to)
	})
	if err != nil {
		return s.writeError(ctx, "update booking status", b, err)
	}
	b.Status = to

	s.logger.Ctx(ctx).Info("booking status changed", "booking_id", id.String(), "from", string(from), "to", string(to))

	s.invalidateBooking(ctx, b)
	if to.Terminal() {
		booking := *b
		s.afterCommit(ctx, string(to), func(ctx context.Context) {
			s.availability.Invalidate(ctx, booking.ProviderID, booking.ScheduledAt)
		})
	}
	return nil
}

// writeError maps a failed transactional write. A missing row means another
// request moved the booking to a terminal status first.
func (s *Service) writeError(ctx context.Context, op string, b *model.Booking, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict("provider", b.ProviderID.String(), "time slot is already booked")
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewInvalidState(entityBooking, b.ID.String(), "booking is no longer active")
	default:
		s.logger.Ctx(ctx).Error(err, op+" failed", "booking_id", b.ID.String())
		return apperrors.NewTransient(op, err)
	}
}

// afterCommit runs fn off the request path with a context that outlives the
// request. Failures are logged and never reach the caller.
func (s *Service) afterCommit(ctx context.Context, op string, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Ctx(detached).Error(fmt.Errorf("%v", r), "post-commit side effect panicked", "operation", op)
			}
		}()
		fn(detached)
	}()
}

func (s *Service) record(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.BookingOp(op, status)
}
