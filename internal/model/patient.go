package model

import (
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	Base
	Name     string `db:"name" json:"name"`
	Email    string `db:"email" json:"email"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

type Insurance struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	Provider           string    `db:"provider" json:"provider"`
	CoveragePercentage float64   `db:"coverage_percentage" json:"coverage_percentage"`
	ExpiresAt          time.Time `db:"expires_at" json:"expires_at"`
}

func (i *Insurance) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

type PaymentMethod struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Kind      string    `db:"kind" json:"kind"`
}
