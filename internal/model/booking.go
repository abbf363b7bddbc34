package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusNoShow    BookingStatus = "no_show"
)

// NonTerminalStatuses are the statuses that hold a slot.
var NonTerminalStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled,
		BookingStatusCompleted, BookingStatusNoShow:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s != BookingStatusPending && s != BookingStatusConfirmed
}

// Booking amounts are integer cents.
type Booking struct {
	Base
	PatientID              uuid.UUID     `db:"patient_id" json:"patient_id"`
	ProviderID             uuid.UUID     `db:"provider_id" json:"provider_id"`
	ServiceTypeID          uuid.UUID     `db:"service_type_id" json:"service_type_id"`
	ScheduledAt            time.Time     `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes        int           `db:"duration_minutes" json:"duration_minutes"`
	Status                 BookingStatus `db:"status" json:"status"`
	TotalAmount            int64         `db:"total_amount" json:"total_amount"`
	InsuranceCoveredAmount int64         `db:"insurance_covered_amount" json:"insurance_covered_amount"`
	PatientPaymentAmount   int64         `db:"patient_payment_amount" json:"patient_payment_amount"`
	InsuranceID            *uuid.UUID    `db:"insurance_id" json:"insurance_id,omitempty"`
	PaymentMethodID        *uuid.UUID    `db:"payment_method_id" json:"payment_method_id,omitempty"`
	Notes                  string        `db:"notes" json:"notes,omitempty"`
	CancellationReason     *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy            *uuid.UUID    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledByRole        *Role         `db:"cancelled_by_role" json:"cancelled_by_role,omitempty"`
	CancelledAt            *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

func (b *Booking) EndsAt() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// BookingReference is the auxiliary row written with every booking.
type BookingReference struct {
	BookingID     uuid.UUID `db:"booking_id" json:"booking_id"`
	ReferenceCode string    `db:"reference_code" json:"reference_code"`
	CheckInToken  uuid.UUID `db:"checkin_token" json:"checkin_token"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// BookingDetails is a booking joined with its reference data. It is the
// cached read model, so the identities used for authorization travel with it.
type BookingDetails struct {
	Booking
	ReferenceCode   string    `db:"reference_code" json:"reference_code"`
	PatientName     string    `db:"patient_name" json:"patient_name"`
	ProviderName    string    `db:"provider_name" json:"provider_name"`
	ServiceTypeName string    `db:"service_type_name" json:"service_type_name"`
	ClinicID        uuid.UUID `db:"clinic_id" json:"clinic_id"`
	ClinicName      string    `db:"clinic_name" json:"clinic_name"`
}

type CancellationFeeStatus string

const (
	CancellationFeePending   CancellationFeeStatus = "pending"
	CancellationFeeCollected CancellationFeeStatus = "collected"
	CancellationFeeWaived    CancellationFeeStatus = "waived"
)

type CancellationFee struct {
	ID                uuid.UUID             `db:"id" json:"id"`
	BookingID         uuid.UUID             `db:"booking_id" json:"booking_id"`
	Amount            int64                 `db:"amount" json:"amount"`
	PenaltyPercentage float64               `db:"penalty_percentage" json:"penalty_percentage"`
	Status            CancellationFeeStatus `db:"status" json:"status"`
	CreatedAt         time.Time             `db:"created_at" json:"created_at"`
}

type CreateBookingRequest struct {
	PatientID       uuid.UUID  `json:"patient_id" validate:"required"`
	ProviderID      uuid.UUID  `json:"provider_id" validate:"required"`
	ServiceTypeID   uuid.UUID  `json:"service_type_id" validate:"required"`
	ScheduledAt     time.Time  `json:"scheduled_at" validate:"required"`
	InsuranceID     *uuid.UUID `json:"insurance_id,omitempty"`
	PaymentMethodID *uuid.UUID `json:"payment_method_id,omitempty"`
	Notes           string     `json:"notes" validate:"max=1000"`
}

type UpdateBookingRequest struct {
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	ServiceTypeID *uuid.UUID `json:"service_type_id,omitempty"`
	Notes         *string    `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// Empty reports whether the request changes nothing.
func (r UpdateBookingRequest) Empty() bool {
	return r.ScheduledAt == nil && r.ServiceTypeID == nil && r.Notes == nil
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type BookingFilters struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	Status     *BookingStatus
	From       *time.Time
	To         *time.Time
	Pagination
}

type BookingPage struct {
	Items []*BookingDetails `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}
