package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Booking notification event types.
const (
	EventBookingConfirmation = "booking.confirmation"
	EventBookingRescheduled  = "booking.rescheduled"
	EventBookingCancellation = "booking.cancellation"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	AggregateID  uuid.UUID       `db:"aggregate_id" json:"aggregate_id"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// BookingNotification is the payload of every booking.* outbox event.
type BookingNotification struct {
	BookingID     uuid.UUID        `json:"booking_id"`
	PatientID     uuid.UUID        `json:"patient_id"`
	ProviderID    uuid.UUID        `json:"provider_id"`
	ScheduledAt   time.Time        `json:"scheduled_at"`
	Status        BookingStatus    `json:"status"`
	ReferenceCode string           `json:"reference_code,omitempty"`
	PreviousTime  *time.Time       `json:"previous_time,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Fee           *CancellationFee `json:"fee,omitempty"`
}
