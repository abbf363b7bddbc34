package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProviderSchedule is a recurring weekly availability window. StartTime and
// EndTime are "HH:MM" wall-clock times in the clinic's timezone.
type ProviderSchedule struct {
	Base
	ProviderID          uuid.UUID    `db:"provider_id" json:"provider_id"`
	DayOfWeek           time.Weekday `db:"day_of_week" json:"day_of_week"`
	StartTime           string       `db:"start_time" json:"start_time"`
	EndTime             string       `db:"end_time" json:"end_time"`
	SlotDurationMinutes int          `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	ServiceTypeID       *uuid.UUID   `db:"service_type_id" json:"service_type_id,omitempty"`
	IsActive            bool         `db:"is_active" json:"is_active"`
}

// AppliesTo reports whether the window serves the given service type. A
// window without a scope serves every type; a nil filter matches all windows.
func (s *ProviderSchedule) AppliesTo(serviceTypeID *uuid.UUID) bool {
	if serviceTypeID == nil || s.ServiceTypeID == nil {
		return true
	}
	return *s.ServiceTypeID == *serviceTypeID
}

// Bounds returns the window start and end on the given day in loc.
func (s *ProviderSchedule) Bounds(day time.Time, loc *time.Location) (time.Time, time.Time, error) {
	sh, sm, err := ParseClock(s.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := ParseClock(s.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, sh, sm, 0, 0, loc), time.Date(y, m, d, eh, em, 0, 0, loc), nil
}

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse(ClockFormat, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

const (
	ClockFormat = "15:04"
	DateFormat  = "2006-01-02"
)

type BlockedSlot struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	BlockedAt  time.Time `db:"blocked_at" json:"blocked_at"`
	Reason     string    `db:"reason" json:"reason"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type ScheduleWindowRequest struct {
	DayOfWeek           int        `json:"day_of_week" validate:"min=0,max=6"`
	StartTime           string     `json:"start_time" validate:"required,hhmm"`
	EndTime             string     `json:"end_time" validate:"required,hhmm"`
	SlotDurationMinutes int        `json:"slot_duration_minutes" validate:"required,min=5,max=480"`
	ServiceTypeID       *uuid.UUID `json:"service_type_id,omitempty"`
}

type ReplaceSchedulesRequest struct {
	Windows []ScheduleWindowRequest `json:"windows" validate:"dive"`
}

type BlockSlotRequest struct {
	BlockedAt time.Time `json:"blocked_at" validate:"required"`
	Reason    string    `json:"reason" validate:"required,max=500"`
}
