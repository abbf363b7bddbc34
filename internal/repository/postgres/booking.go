package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

const bookingColumns = `b.id, b.patient_id, b.provider_id, b.service_type_id, b.scheduled_at,
	b.duration_minutes, b.status, b.total_amount, b.insurance_covered_amount,
	b.patient_payment_amount, b.insurance_id, b.payment_method_id, b.notes,
	b.cancellation_reason, b.cancelled_by, b.cancelled_by_role, b.cancelled_at,
	b.created_at, b.updated_at`

const detailColumns = bookingColumns + `,
	COALESCE(br.reference_code, '') AS reference_code,
	pa.name AS patient_name, pr.name AS provider_name, st.name AS service_type_name,
	c.id AS clinic_id, c.name AS clinic_name`

const detailJoins = `bookings b
	JOIN patients pa ON pa.id = b.patient_id
	JOIN providers pr ON pr.id = b.provider_id
	JOIN clinics c ON c.id = pr.clinic_id
	JOIN service_types st ON st.id = b.service_type_id
	LEFT JOIN booking_references br ON br.booking_id = b.id`

type bookingRepository struct {
	BaseRepository
}

func NewBookingRepository(base BaseRepository) repository.BookingRepository {
	return &bookingRepository{base}
}

func activeStatuses() []string {
	out := make([]string, 0, len(model.NonTerminalStatuses))
	for _, s := range model.NonTerminalStatuses {
		out = append(out, string(s))
	}
	return out
}

func (r *bookingRepository) Create(ctx context.Context, b *model.Booking) error {
	query := `
		INSERT INTO bookings (
			id, patient_id, provider_id, service_type_id, scheduled_at,
			duration_minutes, status, total_amount, insurance_covered_amount,
			patient_payment_amount, insurance_id, payment_method_id, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		b.ID,
		b.PatientID,
		b.ProviderID,
		b.ServiceTypeID,
		b.ScheduledAt,
		b.DurationMinutes,
		b.Status,
		b.TotalAmount,
		b.InsuranceCoveredAmount,
		b.PatientPaymentAmount,
		b.InsuranceID,
		b.PaymentMethodID,
		b.Notes,
		b.CreatedAt,
		b.UpdatedAt,
	)
	return mapError(err, "create booking")
}

func (r *bookingRepository) CreateReference(ctx context.Context, ref *model.BookingReference) error {
	query := `
		INSERT INTO booking_references (booking_id, reference_code, checkin_token, created_at)
		VALUES ($1, $2, $3, $4)
	`
	ref.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).ExecContext(ctx, query, ref.BookingID, ref.ReferenceCode, ref.CheckInToken, ref.CreatedAt)
	return mapError(err, "create booking reference")
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = $1`
	var b model.Booking
	if err := r.conn(ctx).GetContext(ctx, &b, query, id); err != nil {
		return nil, mapError(err, "get booking")
	}
	return &b, nil
}

func (r *bookingRepository) GetDetails(ctx context.Context, id uuid.UUID) (*model.BookingDetails, error) {
	query := `SELECT ` + detailColumns + ` FROM ` + detailJoins + ` WHERE b.id = $1`
	var d model.BookingDetails
	if err := r.conn(ctx).GetContext(ctx, &d, query, id); err != nil {
		return nil, mapError(err, "get booking details")
	}
	return &d, nil
}

func (r *bookingRepository) Update(ctx context.Context, b *model.Booking) error {
	query := `
		UPDATE bookings
		SET scheduled_at = $1, service_type_id = $2, duration_minutes = $3,
			notes = $4, updated_at = $5
		WHERE id = $6 AND status IN ('pending', 'confirmed')
	`
	b.UpdatedAt = time.Now().UTC()
	res, err := r.conn(ctx).ExecContext(ctx, query,
		b.ScheduledAt,
		b.ServiceTypeID,
		b.DurationMinutes,
		b.Notes,
		b.UpdatedAt,
		b.ID,
	)
	if err != nil {
		return mapError(err, "update booking")
	}
	return expectRow(res, "update booking")
}

func (r *bookingRepository) Cancel(ctx context.Context, b *model.Booking) error {
	query := `
		UPDATE bookings
		SET status = $1, cancellation_reason = $2, cancelled_by = $3,
			cancelled_by_role = $4, cancelled_at = $5, updated_at = $5
		WHERE id = $6 AND status IN ('pending', 'confirmed')
	`
	res, err := r.conn(ctx).ExecContext(ctx, query,
		model.BookingStatusCancelled,
		b.CancellationReason,
		b.CancelledBy,
		b.CancelledByRole,
		b.CancelledAt,
		b.ID,
	)
	if err != nil {
		return mapError(err, "cancel booking")
	}
	if err := expectRow(res, "cancel booking"); err != nil {
		return err
	}
	b.Status = model.BookingStatusCancelled
	return nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus) error {
	query := `UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := r.conn(ctx).ExecContext(ctx, query, to, id, from)
	if err != nil {
		return mapError(err, "update booking status")
	}
	return expectRow(res, "update booking status")
}

func (r *bookingRepository) ExistsActiveAt(ctx context.Context, providerID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error) {
	q := psql.Select("1").From("bookings").Where(sq.Eq{
		"provider_id":  providerID,
		"scheduled_at": at,
		"status":       activeStatuses(),
	})
	if excludeID != nil {
		q = q.Where(sq.NotEq{"id": *excludeID})
	}
	inner, args, err := q.Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var exists bool
	if err := r.conn(ctx).GetContext(ctx, &exists, "SELECT EXISTS ("+inner+")", args...); err != nil {
		return false, mapError(err, "check booking conflict")
	}
	return exists, nil
}

func (r *bookingRepository) ListActiveForProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Booking, error) {
	query, args, err := psql.Select(bookingColumns).From("bookings b").
		Where(sq.Eq{"b.provider_id": providerID, "b.status": activeStatuses()}).
		Where(sq.GtOrEq{"b.scheduled_at": from}).
		Where(sq.Lt{"b.scheduled_at": to}).
		OrderBy("b.scheduled_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build provider bookings query: %w", err)
	}

	var bookings []*model.Booking
	if err := r.conn(ctx).SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, mapError(err, "list provider bookings")
	}
	return bookings, nil
}

func (r *bookingRepository) List(ctx context.Context, f *model.BookingFilters) ([]*model.BookingDetails, int, error) {
	where := sq.And{}
	if f.PatientID != nil {
		where = append(where, sq.Eq{"b.patient_id": *f.PatientID})
	}
	if f.ProviderID != nil {
		where = append(where, sq.Eq{"b.provider_id": *f.ProviderID})
	}
	if f.Status != nil {
		where = append(where, sq.Eq{"b.status": *f.Status})
	}
	if f.From != nil {
		where = append(where, sq.GtOrEq{"b.scheduled_at": *f.From})
	}
	if f.To != nil {
		where = append(where, sq.Lt{"b.scheduled_at": *f.To})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("bookings b").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build booking count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, mapError(err, "count bookings")
	}

	page := f.Pagination.Normalize()
	query, args, err := psql.Select(detailColumns).From(detailJoins).Where(where).
		OrderBy("b.scheduled_at ASC", "b.id ASC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build booking list query: %w", err)
	}

	var items []*model.BookingDetails
	if err := r.conn(ctx).SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, mapError(err, "list bookings")
	}
	return items, total, nil
}

func (r *bookingRepository) CreateCancellationFee(ctx context.Context, fee *model.CancellationFee) error {
	query := `
		INSERT INTO cancellation_fees (id, booking_id, amount, penalty_percentage, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if fee.ID == uuid.Nil {
		fee.ID = uuid.New()
	}
	fee.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).ExecContext(ctx, query,
		fee.ID, fee.BookingID, fee.Amount, fee.PenaltyPercentage, fee.Status, fee.CreatedAt)
	return mapError(err, "create cancellation fee")
}
