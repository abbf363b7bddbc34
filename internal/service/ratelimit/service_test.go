package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/repository/memory"
	"github.com/jwalitptl/booking-api/pkg/clock"
)

var errDown = errors.New("connection refused")

type downCache struct{ cache.Cache }

func (downCache) Incr(context.Context, string) (int64, error) { return 0, errDown }

type downCounter struct{}

func (downCounter) IncrementAndGet(context.Context, string, time.Time) (int64, error) {
	return 0, errDown
}

func (downCounter) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, errDown }

const bookingsPath = "/api/v1/bookings"

func fivePerMinute() Config {
	return Config{
		Default: Rule{Window: time.Hour, MaxRequests: 1000},
		Rules: map[string]Rule{
			"POST " + bookingsPath: {Window: time.Minute, MaxRequests: 5},
		},
	}
}

func TestCheck_FixedWindow(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 10, 0, time.UTC))
	svc := NewService(cache.NewMemory(time.Minute), nil, clk, nil, nil, fivePerMinute())
	ctx := context.Background()
	id := UserIdentity("u1")

	for i := 0; i < 5; i++ {
		d := svc.Check(ctx, "POST", bookingsPath, id)
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, int64(4-i), d.Remaining)
	}

	d := svc.Check(ctx, "POST", bookingsPath, id)
	assert.False(t, d.Allowed)
	assert.Equal(t, 50, d.RetryAfter)
	assert.LessOrEqual(t, d.RetryAfter, 60)

	clk.Set(time.Date(2026, 1, 5, 10, 1, 0, 0, time.UTC))
	d = svc.Check(ctx, "POST", bookingsPath, id)
	assert.True(t, d.Allowed, "next window")
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	svc := NewService(cache.NewMemory(time.Minute), nil, clk, nil, nil, fivePerMinute())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Check(ctx, "POST", bookingsPath, UserIdentity("u1"))
	}
	assert.False(t, svc.Check(ctx, "POST", bookingsPath, UserIdentity("u1")).Allowed)
	assert.True(t, svc.Check(ctx, "POST", bookingsPath, UserIdentity("u2")).Allowed)
	assert.True(t, svc.Check(ctx, "POST", bookingsPath, AddressIdentity("u1")).Allowed)
	assert.True(t, svc.Check(ctx, "GET", bookingsPath, UserIdentity("u1")).Allowed)
}

func TestCheck_DefaultRule(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	svc := NewService(cache.NewMemory(time.Minute), nil, clk, nil, nil, Config{
		Default: Rule{Window: time.Second, MaxRequests: 1},
	})
	ctx := context.Background()

	assert.True(t, svc.Check(ctx, "GET", "/anything", AddressIdentity("10.0.0.1")).Allowed)
	d := svc.Check(ctx, "GET", "/anything", AddressIdentity("10.0.0.1"))
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfter)
}

func TestCheck_SubMillisecondWindowsUseDefault(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	svc := NewService(cache.NewMemory(time.Minute), nil, clk, nil, nil, Config{
		Default: Rule{Window: 500 * time.Microsecond, MaxRequests: 1},
		Rules: map[string]Rule{
			"POST " + bookingsPath: {Window: time.Microsecond, MaxRequests: 1},
		},
	})
	ctx := context.Background()

	var d Decision
	require.NotPanics(t, func() {
		d = svc.Check(ctx, "POST", bookingsPath, UserIdentity("u1"))
	})
	assert.True(t, d.Allowed)
	assert.Equal(t, DefaultRule.MaxRequests, d.Limit)
	assert.Equal(t, clk.Now().Truncate(DefaultRule.Window).Add(DefaultRule.Window), d.ResetAt.UTC())
}

func TestCheck_FallsBackToDurableCounter(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	svc := NewService(downCache{}, store.RateLimits(), clk, nil, nil, fivePerMinute())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, svc.Check(ctx, "POST", bookingsPath, UserIdentity("u1")).Allowed)
	}
	assert.False(t, svc.Check(ctx, "POST", bookingsPath, UserIdentity("u1")).Allowed)

	removed, err := store.RateLimits().DeleteExpired(ctx, clk.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestCheck_FailsOpen(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	svc := NewService(downCache{}, downCounter{}, clk, nil, nil, fivePerMinute())

	for i := 0; i < 10; i++ {
		assert.True(t, svc.Check(context.Background(), "POST", bookingsPath, UserIdentity("u1")).Allowed)
	}
}
