package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository/memory"
)

func testBooking() *model.Booking {
	b := &model.Booking{
		PatientID:   uuid.New(),
		ProviderID:  uuid.New(),
		ScheduledAt: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		Status:      model.BookingStatusPending,
	}
	b.ID = uuid.New()
	return b
}

func decode(t *testing.T, e model.OutboxEvent) model.BookingNotification {
	t.Helper()
	var msg model.BookingNotification
	require.NoError(t, json.Unmarshal(e.Payload, &msg))
	return msg
}

func TestService_QueuesEachKind(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Outbox(), nil)
	b := testBooking()

	require.NoError(t, svc.SendBookingConfirmation(ctx, b, "BK-1234"))

	previous := b.ScheduledAt
	b.ScheduledAt = previous.Add(time.Hour)
	require.NoError(t, svc.SendBookingUpdate(ctx, b, previous))

	reason := "feeling better"
	b.Status = model.BookingStatusCancelled
	b.CancellationReason = &reason
	fee := &model.CancellationFee{BookingID: b.ID, Amount: 2500, PenaltyPercentage: 50, Status: model.CancellationFeePending}
	require.NoError(t, svc.SendBookingCancellation(ctx, b, fee))

	events := store.OutboxEvents()
	require.Len(t, events, 3)

	assert.Equal(t, model.EventBookingConfirmation, events[0].EventType)
	assert.Equal(t, model.OutboxStatusPending, events[0].Status)
	assert.Equal(t, b.ID, events[0].AggregateID)
	assert.Equal(t, "BK-1234", decode(t, events[0]).ReferenceCode)

	assert.Equal(t, model.EventBookingRescheduled, events[1].EventType)
	rescheduled := decode(t, events[1])
	require.NotNil(t, rescheduled.PreviousTime)
	assert.True(t, rescheduled.PreviousTime.Equal(previous))

	assert.Equal(t, model.EventBookingCancellation, events[2].EventType)
	cancelled := decode(t, events[2])
	assert.Equal(t, "feeling better", cancelled.Reason)
	require.NotNil(t, cancelled.Fee)
	assert.Equal(t, int64(2500), cancelled.Fee.Amount)
}
