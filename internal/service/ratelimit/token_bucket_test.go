package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/booking-api/pkg/clock"
)

func TestTokenBucket(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	b := NewTokenBucket(10, 2, clk)

	assert.Equal(t, 10, b.Capacity())
	assert.InDelta(t, 10, b.AvailableTokens(), 0.001)

	assert.True(t, b.Consume(8))
	assert.False(t, b.Consume(3))
	assert.InDelta(t, 2, b.AvailableTokens(), 0.001)

	clk.Advance(time.Second)
	assert.InDelta(t, 4, b.AvailableTokens(), 0.001)
	assert.True(t, b.Consume(3))

	clk.Advance(time.Hour)
	assert.InDelta(t, 10, b.AvailableTokens(), 0.001, "refill is capped at capacity")
	assert.False(t, b.Consume(11))
	assert.True(t, b.Consume(0))
}
