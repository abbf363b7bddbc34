package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/repository/memory"
	"github.com/jwalitptl/booking-api/pkg/clock"
)

func TestRateLimitCleanupWorker_Cleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	repo := store.RateLimits()

	_, err := repo.IncrementAndGet(ctx, "ratelimit:ip:1:GET:/a:0", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = repo.IncrementAndGet(ctx, "ratelimit:ip:1:GET:/a:60000", now.Add(time.Minute))
	require.NoError(t, err)

	clk := clock.NewManual(now)
	w := NewRateLimitCleanupWorker(repo, time.Minute, clk, nil)

	rows, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	clk.Advance(2 * time.Minute)
	rows, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
}

func TestRateLimitCleanupWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewRateLimitCleanupWorker(memory.NewStore().RateLimits(), time.Millisecond, nil, nil)

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
