package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type directoryRepository struct {
	s *Store
}

func lookup[V any](s *Store, m func(*state) map[uuid.UUID]V, id uuid.UUID) (*V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := m(s.data)[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *directoryRepository) GetClinic(_ context.Context, id uuid.UUID) (*model.Clinic, error) {
	return lookup(r.s, func(st *state) map[uuid.UUID]model.Clinic { return st.clinics }, id)
}

func (r *directoryRepository) GetProvider(_ context.Context, id uuid.UUID) (*model.Provider, error) {
	return lookup(r.s, func(st *state) map[uuid.UUID]model.Provider { return st.providers }, id)
}

func (r *directoryRepository) ListActiveProviders(_ context.Context, clinicID uuid.UUID) ([]*model.Provider, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Provider
	for _, p := range r.s.data.providers {
		if p.ClinicID == clinicID && p.IsActive {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *directoryRepository) ProviderOffersService(_ context.Context, providerID, serviceTypeID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.data.offerings[offering{providerID: providerID, serviceTypeID: serviceTypeID}], nil
}

func (r *directoryRepository) GetPatient(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	return lookup(r.s, func(st *state) map[uuid.UUID]model.Patient { return st.patients }, id)
}

func (r *directoryRepository) GetServiceType(_ context.Context, id uuid.UUID) (*model.ServiceType, error) {
	return lookup(r.s, func(st *state) map[uuid.UUID]model.ServiceType { return st.serviceTypes }, id)
}

func (r *directoryRepository) GetInsurance(_ context.Context, id uuid.UUID) (*model.Insurance, error) {
	return lookup(r.s, func(st *state) map[uuid.UUID]model.Insurance { return st.insurances }, id)
}

func (r *directoryRepository) GetPaymentMethod(_ context.Context, id uuid.UUID) (*model.PaymentMethod, error) {
	return lookup(r.s, func(st *state) map[uuid.UUID]model.PaymentMethod { return st.paymentMethods }, id)
}
