package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/internal/repository/memory"
	"github.com/jwalitptl/booking-api/internal/service/availability"
	"github.com/jwalitptl/booking-api/internal/service/notification"
	"github.com/jwalitptl/booking-api/pkg/clock"
)

// Thursday 10:00 UTC. Monday 2026-01-05 is the bookable day in most tests.
var thursday = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func monday(hour, minute int) time.Time {
	return time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	store     *memory.Store
	cache     *cache.Memory
	clock     *clock.Manual
	slots     *availability.Service
	validator *Validator
	svc       *Service
	bookings  repository.BookingRepository

	clinic   model.Clinic
	provider model.Provider
	patient  model.Patient
	service  model.ServiceType
}

type fixtureOption func(*fixture)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		cache: cache.NewMemory(time.Minute),
		clock: clock.NewManual(thursday),
	}
	f.bookings = f.store.Bookings()
	for _, opt := range opts {
		opt(f)
	}

	f.clinic = f.store.AddClinic(model.Clinic{
		Name:     "Main",
		Timezone: "UTC",
		IsActive: true,
		CancellationPolicy: model.CancellationPolicy{
			MinimumNoticeHours: 24,
			PenaltyPercentage:  50,
		},
	})
	f.service = f.store.AddServiceType(model.ServiceType{
		Name:              "Checkup",
		DurationMinutes:   30,
		Price:             10000,
		InsuranceEligible: true,
		IsActive:          true,
	})
	f.provider = f.store.AddProvider(model.Provider{ClinicID: f.clinic.ID, Name: "Dr. Adams", IsActive: true}, f.service.ID)
	f.patient = f.store.AddPatient(model.Patient{Name: "Pat", Email: "pat@example.com", IsActive: true})

	require.NoError(t, f.store.Schedules().Create(context.Background(), &model.ProviderSchedule{
		ProviderID:          f.provider.ID,
		DayOfWeek:           time.Monday,
		StartTime:           "09:00",
		EndTime:             "17:00",
		SlotDurationMinutes: 30,
		IsActive:            true,
	}))

	f.slots = availability.NewService(f.store.Schedules(), f.bookings, f.store.Directory(), f.cache, f.clock, nil, nil, availability.DefaultConfig())
	f.validator = NewValidator(nil, f.store.Directory(), f.bookings, f.slots, f.clock, ValidatorConfig{})
	f.svc = NewService(f.store, f.bookings, f.validator, f.slots,
		notification.NewService(f.store.Outbox(), nil), f.cache, f.clock, nil, nil, Config{})
	return f
}

func (f *fixture) patientActor() model.Actor {
	return model.Actor{SubjectID: f.patient.ID, Role: model.RolePatient}
}

func (f *fixture) providerActor() model.Actor {
	return model.Actor{SubjectID: f.provider.ID, Role: model.RoleProvider}
}

func (f *fixture) request(at time.Time) *model.CreateBookingRequest {
	return &model.CreateBookingRequest{
		PatientID:     f.patient.ID,
		ProviderID:    f.provider.ID,
		ServiceTypeID: f.service.ID,
		ScheduledAt:   at,
	}
}

func (f *fixture) create(t *testing.T, at time.Time) *model.BookingDetails {
	t.Helper()
	d, err := f.svc.Create(context.Background(), f.request(at), f.patientActor())
	require.NoError(t, err)
	f.svc.Wait()
	return d
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) *model.Booking {
	t.Helper()
	b, err := f.store.Bookings().Get(context.Background(), id)
	require.NoError(t, err)
	return b
}
