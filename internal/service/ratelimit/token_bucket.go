package ratelimit

import (
	"golang.org/x/time/rate"

	"github.com/jwalitptl/booking-api/pkg/clock"
)

// TokenBucket is an in-process limiter holding at most capacity tokens and
// refilling refillRate tokens per second. It is not shared between
// instances.
type TokenBucket struct {
	limiter *rate.Limiter
	clock   clock.Clock
}

func NewTokenBucket(capacity int, refillRate float64, clk clock.Clock) *TokenBucket {
	if clk == nil {
		clk = clock.Real{}
	}
	l := rate.NewLimiter(rate.Limit(refillRate), capacity)
	// rate.Limiter starts full; pin its notion of "now" to our clock.
	l.SetLimitAt(clk.Now(), rate.Limit(refillRate))
	return &TokenBucket{limiter: l, clock: clk}
}

// Consume takes n tokens if they are all available.
func (b *TokenBucket) Consume(n int) bool {
	if n <= 0 {
		return true
	}
	return b.limiter.AllowN(b.clock.Now(), n)
}

// AvailableTokens reports the tokens that could be consumed now.
func (b *TokenBucket) AvailableTokens() float64 {
	return b.limiter.TokensAt(b.clock.Now())
}

func (b *TokenBucket) Capacity() int {
	return b.limiter.Burst()
}

