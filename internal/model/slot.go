package model

import (
	"time"

	"github.com/google/uuid"
)

// TimeSlot is computed on demand and never persisted.
type TimeSlot struct {
	Time          time.Time  `json:"time"`
	Available     bool       `json:"available"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	ServiceTypeID *uuid.UUID `json:"service_type_id,omitempty"`
}

type DayAvailability struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

type ProviderAvailability struct {
	Provider       *Provider  `json:"provider"`
	Slots          []TimeSlot `json:"slots"`
	AvailableCount int        `json:"available_count"`
}

// AvailabilityQuery selects one provider's slots for one calendar day.
// Date is "YYYY-MM-DD" interpreted in Timezone (IANA name).
type AvailabilityQuery struct {
	ProviderID    uuid.UUID  `form:"provider_id" validate:"required"`
	Date          string     `form:"date" validate:"required,datetime=2006-01-02"`
	ServiceTypeID *uuid.UUID `form:"service_type_id"`
	Timezone      string     `form:"timezone"`
}

type AvailabilityRangeQuery struct {
	ProviderID    uuid.UUID  `form:"provider_id" validate:"required"`
	StartDate     string     `form:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string     `form:"end_date" validate:"required,datetime=2006-01-02"`
	ServiceTypeID *uuid.UUID `form:"service_type_id"`
	Timezone      string     `form:"timezone"`
}

type ProviderSearchQuery struct {
	ClinicID      uuid.UUID  `form:"clinic_id" validate:"required"`
	Date          string     `form:"date" validate:"required,datetime=2006-01-02"`
	ServiceTypeID *uuid.UUID `form:"service_type_id"`
	PreferredTime string     `form:"preferred_time" validate:"omitempty,hhmm"`
	Timezone      string     `form:"timezone"`
}
