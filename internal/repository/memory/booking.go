package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
)

type bookingRepository struct {
	s *Store
}

// conflictLocked mirrors the partial unique index on active bookings.
func (r *bookingRepository) conflictLocked(b *model.Booking) bool {
	if b.Status.Terminal() {
		return false
	}
	for id, other := range r.s.data.bookings {
		if id == b.ID || other.Status.Terminal() {
			continue
		}
		if other.ProviderID == b.ProviderID && other.ScheduledAt.Equal(b.ScheduledAt) {
			return true
		}
	}
	return false
}

func (r *bookingRepository) Create(ctx context.Context, b *model.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	defer r.s.lock(ctx)()
	if r.conflictLocked(b) {
		return fmt.Errorf("create booking: %w: uq_bookings_active_slot", repository.ErrDuplicate)
	}
	r.s.data.bookings[b.ID] = *b
	return nil
}

func (r *bookingRepository) CreateReference(ctx context.Context, ref *model.BookingReference) error {
	ref.CreatedAt = time.Now().UTC()
	defer r.s.lock(ctx)()
	if _, ok := r.s.data.bookings[ref.BookingID]; !ok {
		return fmt.Errorf("create booking reference: booking %s missing", ref.BookingID)
	}
	r.s.data.references[ref.BookingID] = *ref
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r *bookingRepository) detailsLocked(b model.Booking) *model.BookingDetails {
	d := &model.BookingDetails{Booking: b}
	if ref, ok := r.s.data.references[b.ID]; ok {
		d.ReferenceCode = ref.ReferenceCode
	}
	d.PatientName = r.s.data.patients[b.PatientID].Name
	d.ServiceTypeName = r.s.data.serviceTypes[b.ServiceTypeID].Name
	if p, ok := r.s.data.providers[b.ProviderID]; ok {
		d.ProviderName = p.Name
		d.ClinicID = p.ClinicID
		d.ClinicName = r.s.data.clinics[p.ClinicID].Name
	}
	return d
}

func (r *bookingRepository) GetDetails(ctx context.Context, id uuid.UUID) (*model.BookingDetails, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.detailsLocked(b), nil
}

func (r *bookingRepository) Update(ctx context.Context, b *model.Booking) error {
	defer r.s.lock(ctx)()
	cur, ok := r.s.data.bookings[b.ID]
	if !ok || cur.Status.Terminal() {
		return repository.ErrNotFound
	}
	cur.ScheduledAt = b.ScheduledAt
	cur.ServiceTypeID = b.ServiceTypeID
	cur.DurationMinutes = b.DurationMinutes
	cur.Notes = b.Notes
	cur.UpdatedAt = time.Now().UTC()
	if r.conflictLocked(&cur) {
		return fmt.Errorf("update booking: %w: uq_bookings_active_slot", repository.ErrDuplicate)
	}
	r.s.data.bookings[b.ID] = cur
	b.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *bookingRepository) Cancel(ctx context.Context, b *model.Booking) error {
	defer r.s.lock(ctx)()
	cur, ok := r.s.data.bookings[b.ID]
	if !ok || cur.Status.Terminal() {
		return repository.ErrNotFound
	}
	cur.Status = model.BookingStatusCancelled
	cur.CancellationReason = b.CancellationReason
	cur.CancelledBy = b.CancelledBy
	cur.CancelledByRole = b.CancelledByRole
	cur.CancelledAt = b.CancelledAt
	if b.CancelledAt != nil {
		cur.UpdatedAt = *b.CancelledAt
	}
	r.s.data.bookings[b.ID] = cur
	b.Status = model.BookingStatusCancelled
	return nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus) error {
	defer r.s.lock(ctx)()
	cur, ok := r.s.data.bookings[id]
	if !ok || cur.Status != from {
		return repository.ErrNotFound
	}
	cur.Status = to
	cur.UpdatedAt = time.Now().UTC()
	r.s.data.bookings[id] = cur
	return nil
}

func (r *bookingRepository) ExistsActiveAt(ctx context.Context, providerID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, b := range r.s.data.bookings {
		if excludeID != nil && id == *excludeID {
			continue
		}
		if b.ProviderID == providerID && !b.Status.Terminal() && b.ScheduledAt.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func (r *bookingRepository) ListActiveForProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*model.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Booking
	for _, b := range r.s.data.bookings {
		if b.ProviderID != providerID || b.Status.Terminal() {
			continue
		}
		if b.ScheduledAt.Before(from) || !b.ScheduledAt.Before(to) {
			continue
		}
		b := b
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *bookingRepository) List(ctx context.Context, f *model.BookingFilters) ([]*model.BookingDetails, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []model.Booking
	for _, b := range r.s.data.bookings {
		switch {
		case f.PatientID != nil && b.PatientID != *f.PatientID:
			continue
		case f.ProviderID != nil && b.ProviderID != *f.ProviderID:
			continue
		case f.Status != nil && b.Status != *f.Status:
			continue
		case f.From != nil && b.ScheduledAt.Before(*f.From):
			continue
		case f.To != nil && !b.ScheduledAt.Before(*f.To):
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ScheduledAt.Equal(matched[j].ScheduledAt) {
			return matched[i].ScheduledAt.Before(matched[j].ScheduledAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	page := f.Pagination.Normalize()
	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	items := make([]*model.BookingDetails, 0, end-start)
	for _, b := range matched[start:end] {
		items = append(items, r.detailsLocked(b))
	}
	return items, total, nil
}

func (r *bookingRepository) CreateCancellationFee(ctx context.Context, fee *model.CancellationFee) error {
	if fee.ID == uuid.Nil {
		fee.ID = uuid.New()
	}
	fee.CreatedAt = time.Now().UTC()
	defer r.s.lock(ctx)()
	r.s.data.fees = append(r.s.data.fees, *fee)
	return nil
}
