package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type directoryRepository struct {
	BaseRepository
}

func NewDirectoryRepository(base BaseRepository) repository.DirectoryRepository {
	return &directoryRepository{base}
}

func (r *directoryRepository) GetClinic(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	query := `
		SELECT id, name, timezone, cancellation_notice_hours, cancellation_penalty_percentage,
			is_active, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`
	var clinic model.Clinic
	if err := r.conn(ctx).GetContext(ctx, &clinic, query, id); err != nil {
		return nil, mapError(err, "get clinic")
	}
	return &clinic, nil
}

func (r *directoryRepository) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	query := `SELECT id, clinic_id, name, is_active, created_at, updated_at FROM providers WHERE id = $1`
	var provider model.Provider
	if err := r.conn(ctx).GetContext(ctx, &provider, query, id); err != nil {
		return nil, mapError(err, "get provider")
	}
	return &provider, nil
}

func (r *directoryRepository) ListActiveProviders(ctx context.Context, clinicID uuid.UUID) ([]*model.Provider, error) {
	query := `
		SELECT id, clinic_id, name, is_active, created_at, updated_at
		FROM providers
		WHERE clinic_id = $1 AND is_active
		ORDER BY name ASC
	`
	var providers []*model.Provider
	if err := r.conn(ctx).SelectContext(ctx, &providers, query, clinicID); err != nil {
		return nil, mapError(err, "list providers")
	}
	return providers, nil
}

func (r *directoryRepository) ProviderOffersService(ctx context.Context, providerID, serviceTypeID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM provider_services WHERE provider_id = $1 AND service_type_id = $2)`
	var offered bool
	if err := r.conn(ctx).GetContext(ctx, &offered, query, providerID, serviceTypeID); err != nil {
		return false, mapError(err, "check provider service")
	}
	return offered, nil
}

func (r *directoryRepository) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT id, name, email, is_active, created_at, updated_at FROM patients WHERE id = $1`
	var patient model.Patient
	if err := r.conn(ctx).GetContext(ctx, &patient, query, id); err != nil {
		return nil, mapError(err, "get patient")
	}
	return &patient, nil
}

func (r *directoryRepository) GetServiceType(ctx context.Context, id uuid.UUID) (*model.ServiceType, error) {
	query := `
		SELECT id, name, duration_minutes, price, insurance_eligible, is_active, created_at, updated_at
		FROM service_types
		WHERE id = $1
	`
	var st model.ServiceType
	if err := r.conn(ctx).GetContext(ctx, &st, query, id); err != nil {
		return nil, mapError(err, "get service type")
	}
	return &st, nil
}

func (r *directoryRepository) GetInsurance(ctx context.Context, id uuid.UUID) (*model.Insurance, error) {
	query := `SELECT id, patient_id, provider, coverage_percentage, expires_at FROM insurances WHERE id = $1`
	var ins model.Insurance
	if err := r.conn(ctx).GetContext(ctx, &ins, query, id); err != nil {
		return nil, mapError(err, "get insurance")
	}
	return &ins, nil
}

func (r *directoryRepository) GetPaymentMethod(ctx context.Context, id uuid.UUID) (*model.PaymentMethod, error) {
	query := `SELECT id, patient_id, kind FROM payment_methods WHERE id = $1`
	var pm model.PaymentMethod
	if err := r.conn(ctx).GetContext(ctx, &pm, query, id); err != nil {
		return nil, mapError(err, "get payment method")
	}
	return &pm, nil
}
