package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/model"
)

func outboxEvent(eventType string) *model.OutboxEvent {
	return &model.OutboxEvent{
		EventType:   eventType,
		AggregateID: uuid.New(),
		Payload:     json.RawMessage(`{}`),
	}
}

func TestWithTx_RollbackDiscardsOwnWrites(t *testing.T) {
	s := NewStore()
	errBoom := errors.New("boom")

	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, s.Outbox().Create(ctx, outboxEvent("inside")))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, s.OutboxEvents())
}

func TestWithTx_RollbackKeepsConcurrentWrites(t *testing.T) {
	s := NewStore()
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := s.WithTx(context.Background(), func(ctx context.Context) error {
			if err := s.Outbox().Create(ctx, outboxEvent("inside")); err != nil {
				return err
			}
			close(started)
			<-release
			return errors.New("rolled back")
		})
		assert.Error(t, err)
	}()

	<-started
	go func() {
		defer wg.Done()
		ctx := context.Background()
		assert.NoError(t, s.Outbox().Create(ctx, outboxEvent("outside")))
		_, err := s.RateLimits().IncrementAndGet(ctx, "user:1", time.Now().Add(time.Minute))
		assert.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	events := s.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "outside", events[0].EventType)

	count, err := s.RateLimits().IncrementAndGet(context.Background(), "user:1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	s := NewStore()

	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			return s.Outbox().Create(ctx, outboxEvent("nested"))
		})
	})
	require.NoError(t, err)
	assert.Len(t, s.OutboxEvents(), 1)
}
