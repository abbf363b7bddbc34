package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
)

type outboxRepository struct {
	s *Store
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	event.ID = uuid.New()
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	defer r.s.lock(ctx)()
	r.s.data.outbox = append(r.s.data.outbox, *event)
	return nil
}

func (r *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	now := time.Now()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.OutboxEvent
	for _, e := range r.s.data.outbox {
		if len(out) >= limit {
			break
		}
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		e := e
		out = append(out, &e)
	}
	return out, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	defer r.s.lock(ctx)()
	for i := range r.s.data.outbox {
		e := &r.s.data.outbox[i]
		if e.ID != id {
			continue
		}
		now := time.Now().UTC()
		e.Status = status
		e.ErrorMessage = errorMessage
		e.RetryAt = retryAt
		e.UpdatedAt = now
		switch status {
		case model.OutboxStatusRetry, model.OutboxStatusFailed:
			e.RetryCount++
		case model.OutboxStatusProcessed:
			e.ProcessedAt = &now
		}
		return nil
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	kept := r.s.data.outbox[:0]
	var removed int64
	for _, e := range r.s.data.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.s.data.outbox = kept
	return removed, nil
}
