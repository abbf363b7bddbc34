package model

import (
	"time"

	"github.com/google/uuid"
)

// CancellationPolicy: cancelling with less than MinimumNoticeHours left
// costs PenaltyPercentage of the patient's share.
type CancellationPolicy struct {
	MinimumNoticeHours float64 `db:"cancellation_notice_hours" json:"minimum_notice_hours"`
	PenaltyPercentage  float64 `db:"cancellation_penalty_percentage" json:"penalty_percentage"`
}

type Clinic struct {
	Base
	Name     string `db:"name" json:"name"`
	Timezone string `db:"timezone" json:"timezone"`
	IsActive bool   `db:"is_active" json:"is_active"`
	CancellationPolicy
}

func (c *Clinic) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

type Provider struct {
	Base
	ClinicID uuid.UUID `db:"clinic_id" json:"clinic_id"`
	Name     string    `db:"name" json:"name"`
	IsActive bool      `db:"is_active" json:"is_active"`
}
