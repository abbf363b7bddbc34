// Package notification hands booking notifications to the delivery
// subsystem by queuing them in the outbox. Delivery happens elsewhere.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

type Service interface {
	SendBookingConfirmation(ctx context.Context, booking *model.Booking, referenceCode string) error
	SendBookingUpdate(ctx context.Context, booking *model.Booking, previousTime time.Time) error
	SendBookingCancellation(ctx context.Context, booking *model.Booking, fee *model.CancellationFee) error
}

type service struct {
	outbox repository.OutboxRepository
	logger *logger.Logger
}

func NewService(outbox repository.OutboxRepository, log *logger.Logger) Service {
	if log == nil {
		log = logger.Nop()
	}
	return &service{outbox: outbox, logger: log}
}

func (s *service) SendBookingConfirmation(ctx context.Context, b *model.Booking, referenceCode string) error {
	msg := payloadFor(b)
	msg.ReferenceCode = referenceCode
	return s.enqueue(ctx, model.EventBookingConfirmation, msg)
}

func (s *service) SendBookingUpdate(ctx context.Context, b *model.Booking, previousTime time.Time) error {
	msg := payloadFor(b)
	msg.PreviousTime = &previousTime
	return s.enqueue(ctx, model.EventBookingRescheduled, msg)
}

func (s *service) SendBookingCancellation(ctx context.Context, b *model.Booking, fee *model.CancellationFee) error {
	msg := payloadFor(b)
	if b.CancellationReason != nil {
		msg.Reason = *b.CancellationReason
	}
	msg.Fee = fee
	return s.enqueue(ctx, model.EventBookingCancellation, msg)
}

func payloadFor(b *model.Booking) model.BookingNotification {
	return model.BookingNotification{
		BookingID:   b.ID,
		PatientID:   b.PatientID,
		ProviderID:  b.ProviderID,
		ScheduledAt: b.ScheduledAt,
		Status:      b.Status,
	}
}

func (s *service) enqueue(ctx context.Context, eventType string, msg model.BookingNotification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		EventType:   eventType,
		AggregateID: msg.BookingID,
		Payload:     payload,
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	s.logger.Debug("notification queued",
		"event_id", event.ID.String(),
		"event_type", eventType,
		"booking_id", msg.BookingID.String())
	return nil
}
