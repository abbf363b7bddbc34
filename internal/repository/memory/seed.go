package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
)

func ensureBase(b *model.Base) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
		b.UpdatedAt = b.CreatedAt
	}
}

func (s *Store) AddClinic(c model.Clinic) model.Clinic {
	ensureBase(&c.Base)
	defer s.lock(context.Background())()
	s.data.clinics[c.ID] = c
	return c
}

// AddProvider stores the provider and links it to the given service types.
func (s *Store) AddProvider(p model.Provider, serviceTypeIDs ...uuid.UUID) model.Provider {
	ensureBase(&p.Base)
	defer s.lock(context.Background())()
	s.data.providers[p.ID] = p
	for _, id := range serviceTypeIDs {
		s.data.offerings[offering{providerID: p.ID, serviceTypeID: id}] = true
	}
	return p
}

func (s *Store) AddPatient(p model.Patient) model.Patient {
	ensureBase(&p.Base)
	defer s.lock(context.Background())()
	s.data.patients[p.ID] = p
	return p
}

func (s *Store) AddServiceType(st model.ServiceType) model.ServiceType {
	ensureBase(&st.Base)
	defer s.lock(context.Background())()
	s.data.serviceTypes[st.ID] = st
	return st
}

func (s *Store) AddInsurance(ins model.Insurance) model.Insurance {
	if ins.ID == uuid.Nil {
		ins.ID = uuid.New()
	}
	defer s.lock(context.Background())()
	s.data.insurances[ins.ID] = ins
	return ins
}

func (s *Store) AddPaymentMethod(pm model.PaymentMethod) model.PaymentMethod {
	if pm.ID == uuid.Nil {
		pm.ID = uuid.New()
	}
	defer s.lock(context.Background())()
	s.data.paymentMethods[pm.ID] = pm
	return pm
}

// CancellationFees returns the recorded fees in insertion order.
func (s *Store) CancellationFees() []model.CancellationFee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.CancellationFee(nil), s.data.fees...)
}

// Reference returns the reference row written with a booking.
func (s *Store) Reference(bookingID uuid.UUID) (model.BookingReference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.data.references[bookingID]
	return ref, ok
}

// OutboxEvents returns every queued event in insertion order.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.OutboxEvent(nil), s.data.outbox...)
}
