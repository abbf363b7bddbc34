// Package memory is an in-process implementation of the repository
// interfaces. It backs the "memory" database driver and the service tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type offering struct {
	providerID    uuid.UUID
	serviceTypeID uuid.UUID
}

type state struct {
	clinics        map[uuid.UUID]model.Clinic
	providers      map[uuid.UUID]model.Provider
	offerings      map[offering]bool
	patients       map[uuid.UUID]model.Patient
	serviceTypes   map[uuid.UUID]model.ServiceType
	insurances     map[uuid.UUID]model.Insurance
	paymentMethods map[uuid.UUID]model.PaymentMethod
	schedules      map[uuid.UUID]model.ProviderSchedule
	blocked        map[uuid.UUID]model.BlockedSlot
	bookings       map[uuid.UUID]model.Booking
	references     map[uuid.UUID]model.BookingReference
	fees           []model.CancellationFee
	outbox         []model.OutboxEvent
	windows        map[string]model.RateLimitWindow
}

func newState() *state {
	return &state{
		clinics:        map[uuid.UUID]model.Clinic{},
		providers:      map[uuid.UUID]model.Provider{},
		offerings:      map[offering]bool{},
		patients:       map[uuid.UUID]model.Patient{},
		serviceTypes:   map[uuid.UUID]model.ServiceType{},
		insurances:     map[uuid.UUID]model.Insurance{},
		paymentMethods: map[uuid.UUID]model.PaymentMethod{},
		schedules:      map[uuid.UUID]model.ProviderSchedule{},
		blocked:        map[uuid.UUID]model.BlockedSlot{},
		bookings:       map[uuid.UUID]model.Booking{},
		references:     map[uuid.UUID]model.BookingReference{},
		windows:        map[string]model.RateLimitWindow{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		clinics:        cloneMap(s.clinics),
		providers:      cloneMap(s.providers),
		offerings:      cloneMap(s.offerings),
		patients:       cloneMap(s.patients),
		serviceTypes:   cloneMap(s.serviceTypes),
		insurances:     cloneMap(s.insurances),
		paymentMethods: cloneMap(s.paymentMethods),
		schedules:      cloneMap(s.schedules),
		blocked:        cloneMap(s.blocked),
		bookings:       cloneMap(s.bookings),
		references:     cloneMap(s.references),
		fees:           append([]model.CancellationFee(nil), s.fees...),
		outbox:         append([]model.OutboxEvent(nil), s.outbox...),
		windows:        cloneMap(s.windows),
	}
}

// Store holds every table. Transactions are serialized and roll back by
// restoring a snapshot taken when they began.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *state
}

type txKey struct{}

func NewStore() *Store {
	return &Store{data: newState()}
}

// WithTx implements repository.TxManager.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// lock takes the write lock. Writes outside a transaction also wait for any
// open transaction, so its rollback cannot discard them.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func (s *Store) restore(snapshot *state) {
	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
}

func (s *Store) Bookings() repository.BookingRepository     { return &bookingRepository{s} }
func (s *Store) Schedules() repository.ScheduleRepository   { return &scheduleRepository{s} }
func (s *Store) Directory() repository.DirectoryRepository  { return &directoryRepository{s} }
func (s *Store) Outbox() repository.OutboxRepository        { return &outboxRepository{s} }
func (s *Store) RateLimits() repository.RateLimitRepository { return &rateLimitRepository{s} }
