package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/service/notification"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

func TestCreate_PendingWithReference(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, monday(10, 0))

	assert.Equal(t, model.BookingStatusPending, d.Status)
	assert.Equal(t, 30, d.DurationMinutes)
	assert.Equal(t, "Dr. Adams", d.ProviderName)
	assert.Equal(t, f.clinic.ID, d.ClinicID)
	assert.Regexp(t, `^BK-[0-9A-F]{10}$`, d.ReferenceCode)

	ref, ok := f.store.Reference(d.ID)
	require.True(t, ok)
	assert.Equal(t, d.ReferenceCode, ref.ReferenceCode)
	assert.NotEqual(t, uuid.Nil, ref.CheckInToken)

	events := f.store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventBookingConfirmation, events[0].EventType)
	assert.Equal(t, d.ID, events[0].AggregateID)
}

func TestCreate_Pricing(t *testing.T) {
	f := newFixture(t)
	ins := f.store.AddInsurance(model.Insurance{
		PatientID:          f.patient.ID,
		Provider:           "Acme",
		CoveragePercentage: 33.3,
		ExpiresAt:          thursday.AddDate(1, 0, 0),
	})

	req := f.request(monday(10, 0))
	req.InsuranceID = &ins.ID
	d, err := f.svc.Create(context.Background(), req, f.patientActor())
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, int64(10000), d.TotalAmount)
	assert.Equal(t, int64(3330), d.InsuranceCoveredAmount)
	assert.Equal(t, int64(6670), d.PatientPaymentAmount)
	assert.Equal(t, d.TotalAmount, d.InsuranceCoveredAmount+d.PatientPaymentAmount)

	plain := f.create(t, monday(10, 30))
	assert.Zero(t, plain.InsuranceCoveredAmount)
	assert.Equal(t, plain.TotalAmount, plain.PatientPaymentAmount)
}

func TestSplitPrice_IneligibleService(t *testing.T) {
	covered, pays := splitPrice(
		&model.ServiceType{Price: 999, InsuranceEligible: false},
		&model.Insurance{CoveragePercentage: 100},
	)
	assert.Zero(t, covered)
	assert.Equal(t, int64(999), pays)

	covered, pays = splitPrice(
		&model.ServiceType{Price: 999, InsuranceEligible: true},
		&model.Insurance{CoveragePercentage: 50},
	)
	assert.Equal(t, int64(999), covered+pays)
}

func TestCreate_SecondBookingConflicts(t *testing.T) {
	f := newFixture(t)
	f.create(t, monday(10, 0))

	_, err := f.svc.Create(context.Background(), f.request(monday(10, 0)), f.patientActor())
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestCreate_ConcurrentRequestsOneWins(t *testing.T) {
	f := newFixture(t)
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), f.request(monday(10, 0)), f.patientActor())
		}(i)
	}
	wg.Wait()
	f.svc.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
	}
	assert.Equal(t, 1, succeeded)
}

func TestCreate_Authorization(t *testing.T) {
	f := newFixture(t)

	other := model.Actor{SubjectID: uuid.New(), Role: model.RolePatient}
	_, err := f.svc.Create(context.Background(), f.request(monday(10, 0)), other)
	assert.Equal(t, apperrors.ErrAuthorization, apperrors.CodeOf(err))

	staff := model.Actor{SubjectID: uuid.New(), Role: model.RoleStaff}
	_, err = f.svc.Create(context.Background(), f.request(monday(10, 0)), staff)
	assert.NoError(t, err)
	f.svc.Wait()
}

type failingReferences struct {
	repository.BookingRepository
}

func (failingReferences) CreateReference(context.Context, *model.BookingReference) error {
	return errors.New("disk full")
}

func TestCreate_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.bookings = failingReferences{f.store.Bookings()}
	})

	_, err := f.svc.Create(context.Background(), f.request(monday(10, 0)), f.patientActor())
	assert.Equal(t, apperrors.ErrTransient, apperrors.CodeOf(err))
	f.svc.Wait()

	exists, err := f.store.Bookings().ExistsActiveAt(context.Background(), f.provider.ID, monday(10, 0), nil)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, f.store.OutboxEvents())
}

func TestCreate_InvalidatesAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := model.AvailabilityQuery{ProviderID: f.provider.ID, Date: "2026-01-05"}

	before, err := f.slots.GetAvailability(ctx, q)
	require.NoError(t, err)
	require.True(t, before[2].Available)

	f.create(t, monday(10, 0))

	after, err := f.slots.GetAvailability(ctx, q)
	require.NoError(t, err)
	assert.False(t, after[2].Available)
}

func TestGet_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, monday(10, 0))

	got, err := f.svc.Get(ctx, d.ID, f.patientActor())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.ReferenceCode, got.ReferenceCode)

	// The first read populated the cache; the stranger must still be refused.
	got, err = f.svc.Get(ctx, d.ID, model.Actor{SubjectID: uuid.New(), Role: model.RolePatient})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.svc.Get(ctx, d.ID, f.providerActor())
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = f.svc.Get(ctx, uuid.New(), model.Actor{SubjectID: uuid.New(), Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestList_ScopedAndPaginated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, m := range []int{0, 30} {
		for h := 9; h < 13; h++ {
			f.create(t, monday(h, m))
		}
	}
	other := f.store.AddPatient(model.Patient{Name: "Other", IsActive: true})
	req := f.request(monday(15, 0))
	req.PatientID = other.ID
	_, err := f.svc.Create(ctx, req, model.Actor{SubjectID: other.ID, Role: model.RolePatient})
	require.NoError(t, err)
	f.svc.Wait()

	page, err := f.svc.List(ctx, f.patientActor(), model.BookingFilters{
		Pagination: model.Pagination{Page: 2, Limit: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, page.Total)
	require.Len(t, page.Items, 3)
	assert.True(t, page.Items[0].ScheduledAt.Equal(monday(10, 30)))
	for _, item := range page.Items {
		assert.Equal(t, f.patient.ID, item.PatientID)
	}

	page, err = f.svc.List(ctx, model.Actor{SubjectID: uuid.New(), Role: model.RoleStaff}, model.BookingFilters{
		Pagination: model.Pagination{Limit: 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, 9, page.Total)
	assert.Equal(t, model.MaxPageLimit, page.Limit)
	assert.Equal(t, 1, page.Page)
}

func TestList_CacheRefreshesAfterWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, monday(10, 0))

	page, err := f.svc.List(ctx, f.patientActor(), model.BookingFilters{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	f.create(t, monday(11, 0))

	page, err = f.svc.List(ctx, f.patientActor(), model.BookingFilters{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestUpdate_Reschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, monday(10, 0))

	// Warm the cache with the old time.
	_, err := f.svc.Get(ctx, d.ID, f.patientActor())
	require.NoError(t, err)

	newTime := monday(14, 0)
	updated, err := f.svc.Update(ctx, d.ID, &model.UpdateBookingRequest{ScheduledAt: &newTime}, f.patientActor())
	require.NoError(t, err)
	f.svc.Wait()
	assert.True(t, updated.ScheduledAt.Equal(newTime))

	got, err := f.svc.Get(ctx, d.ID, f.patientActor())
	require.NoError(t, err)
	assert.True(t, got.ScheduledAt.Equal(newTime))

	events := f.store.OutboxEvents()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventBookingRescheduled, events[1].EventType)
	var msg model.BookingNotification
	require.NoError(t, json.Unmarshal(events[1].Payload, &msg))
	require.NotNil(t, msg.PreviousTime)
	assert.True(t, msg.PreviousTime.Equal(monday(10, 0)))

	// The old slot is free again.
	f.create(t, monday(10, 0))
}

func TestUpdate_NotesOnlyDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, monday(10, 0))

	notes := "bring x-rays"
	updated, err := f.svc.Update(context.Background(), d.ID, &model.UpdateBookingRequest{Notes: &notes}, f.patientActor())
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, notes, updated.Notes)
	assert.Len(t, f.store.OutboxEvents(), 1)
}

func TestUpdate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, monday(10, 0))
	f.create(t, monday(11, 0))

	taken := monday(11, 0)
	_, err := f.svc.Update(ctx, d.ID, &model.UpdateBookingRequest{ScheduledAt: &taken}, f.patientActor())
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))

	free := monday(15, 0)
	_, err = f.svc.Update(ctx, d.ID, &model.UpdateBookingRequest{ScheduledAt: &free},
		model.Actor{SubjectID: uuid.New(), Role: model.RolePatient})
	assert.Equal(t, apperrors.ErrAuthorization, apperrors.CodeOf(err))

	_, err = f.svc.Cancel(ctx, d.ID, "sick", f.patientActor())
	require.NoError(t, err)
	f.svc.Wait()

	_, err = f.svc.Update(ctx, d.ID, &model.UpdateBookingRequest{ScheduledAt: &free}, f.patientActor())
	assert.Equal(t, apperrors.ErrInvalidState, apperrors.CodeOf(err))
}

func TestCancel_NoPenaltyWithNotice(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, monday(10, 0))

	res, err := f.svc.Cancel(context.Background(), d.ID, "travel", f.patientActor())
	require.NoError(t, err)
	f.svc.Wait()

	assert.Nil(t, res.Fee)
	assert.Empty(t, f.store.CancellationFees())

	b := f.stored(t, d.ID)
	assert.Equal(t, model.BookingStatusCancelled, b.Status)
	require.NotNil(t, b.CancelledByRole)
	assert.Equal(t, model.RolePatient, *b.CancelledByRole)
	assert.Equal(t, "travel", *b.CancellationReason)

	events := f.store.OutboxEvents()
	assert.Equal(t, model.EventBookingCancellation, events[len(events)-1].EventType)
}

func TestCancel_PenaltyWithinNotice(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, monday(10, 0))
	f.clock.Set(monday(0, 0))

	res, err := f.svc.Cancel(context.Background(), d.ID, "overslept", f.providerActor())
	require.NoError(t, err)
	f.svc.Wait()

	require.NotNil(t, res.Fee)
	assert.Equal(t, int64(5000), res.Fee.Amount)
	assert.Equal(t, model.CancellationFeePending, res.Fee.Status)

	fees := f.store.CancellationFees()
	require.Len(t, fees, 1)
	assert.Equal(t, d.ID, fees[0].BookingID)
}

func TestCancel_Twice(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, monday(10, 0))

	_, err := f.svc.Cancel(context.Background(), d.ID, "first", f.patientActor())
	require.NoError(t, err)
	f.svc.Wait()

	_, err = f.svc.Cancel(context.Background(), d.ID, "second", f.patientActor())
	assert.Equal(t, apperrors.ErrInvalidState, apperrors.CodeOf(err))
}

func TestCancel_FreesSlot(t *testing.T) {
	f := newFixture(t)
	d := f.create(t, monday(10, 0))

	_, err := f.svc.Cancel(context.Background(), d.ID, "changed plans", f.patientActor())
	require.NoError(t, err)
	f.svc.Wait()

	f.create(t, monday(10, 0))
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.create(t, monday(10, 0))

	err := f.svc.Confirm(ctx, d.ID, f.patientActor())
	assert.Equal(t, apperrors.ErrAuthorization, apperrors.CodeOf(err))

	err = f.svc.Complete(ctx, d.ID, f.providerActor())
	assert.Equal(t, apperrors.ErrInvalidState, apperrors.CodeOf(err), "pending cannot complete")

	require.NoError(t, f.svc.Confirm(ctx, d.ID, f.providerActor()))
	assert.Equal(t, model.BookingStatusConfirmed, f.stored(t, d.ID).Status)

	require.NoError(t, f.svc.MarkNoShow(ctx, d.ID, model.Actor{SubjectID: uuid.New(), Role: model.RoleStaff}))
	f.svc.Wait()
	assert.Equal(t, model.BookingStatusNoShow, f.stored(t, d.ID).Status)

	err = f.svc.Complete(ctx, d.ID, f.providerActor())
	assert.Equal(t, apperrors.ErrInvalidState, apperrors.CodeOf(err))

	_, err = f.svc.Cancel(ctx, d.ID, "late", f.patientActor())
	assert.Equal(t, apperrors.ErrInvalidState, apperrors.CodeOf(err))

	// A no-show releases the slot.
	f.create(t, monday(10, 0))
}

func TestCreate_LogsCarryRequestID(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	log := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Output: &buf, JSON: true})
	svc := NewService(f.store, f.bookings, f.validator, f.slots,
		notification.NewService(f.store.Outbox(), nil), f.cache, f.clock, log, nil, Config{})

	ctx := logger.ContextWithRequestID(context.Background(), "7f0c2d4e-0000-4000-8000-000000000001")
	_, err := svc.Create(ctx, f.request(monday(10, 0)), f.patientActor())
	require.NoError(t, err)
	svc.Wait()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0], &entry))
	assert.Equal(t, "booking created", entry["message"])
	assert.Equal(t, "7f0c2d4e-0000-4000-8000-000000000001", entry["request_id"])
}
