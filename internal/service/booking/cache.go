package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/model"
)

func bookingKey(id uuid.UUID) string {
	return "booking:" + id.String()
}

func listVersionKey(role model.Role, subjectID uuid.UUID) string {
	return fmt.Sprintf("bookings:listver:%s:%s", role, subjectID)
}

// listKey builds the list cache key for party-scoped queries. Staff and
// admin lists span every party and are not cached.
func (s *Service) listKey(ctx context.Context, actor model.Actor, f *model.BookingFilters) (string, bool) {
	if s.cache == nil || actor.Privileged() {
		return "", false
	}
	ver, err := cache.Version(ctx, s.cache, listVersionKey(actor.Role, actor.SubjectID))
	if err != nil {
		s.logger.Debug("booking list version read failed", "error", err.Error())
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "bookings:list:%s:%s:v%d:p%d:l%d", actor.Role, actor.SubjectID, ver, f.Page, f.Limit)
	if f.Status != nil {
		fmt.Fprintf(&b, ":s=%s", *f.Status)
	}
	if f.From != nil {
		fmt.Fprintf(&b, ":from=%d", f.From.Unix())
	}
	if f.To != nil {
		fmt.Fprintf(&b, ":to=%d", f.To.Unix())
	}
	// The scoped party is fixed by the actor; a patient filtering by
	// provider (or the reverse) still needs its own key.
	if actor.Role == model.RolePatient && f.ProviderID != nil {
		fmt.Fprintf(&b, ":prov=%s", *f.ProviderID)
	}
	if actor.Role == model.RoleProvider && f.PatientID != nil {
		fmt.Fprintf(&b, ":pat=%s", *f.PatientID)
	}
	return b.String(), true
}

// invalidateBooking drops the booking's cached copy and moves both parties'
// list caches to a new version.
func (s *Service) invalidateBooking(ctx context.Context, b *model.Booking) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, bookingKey(b.ID)); err != nil {
		s.logger.Warn(err, "booking cache invalidation failed", "booking_id", b.ID.String())
	}
	for _, key := range []string{
		listVersionKey(model.RolePatient, b.PatientID),
		listVersionKey(model.RoleProvider, b.ProviderID),
	} {
		if _, err := s.cache.Incr(ctx, key); err != nil {
			s.logger.Warn(err, "booking list invalidation failed", "key", key)
			continue
		}
		if err := s.cache.Expire(ctx, key, 24*time.Hour); err != nil {
			s.logger.Debug("booking list version expiry failed", "key", key, "error", err.Error())
		}
	}
}
