package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/service/ratelimit"
)

// RateLimit admits requests through the shared fixed-window limiter. It must
// run after Authenticate so authenticated callers are counted by subject.
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := ratelimit.AddressIdentity(c.ClientIP())
		if actor, ok := ActorFrom(c); ok {
			identity = ratelimit.UserIdentity(actor.SubjectID.String())
		}
		if admit(c, limiter, identity) {
			c.Next()
		}
	}
}

// admit counts the request for identity and sets the rate limit headers. A
// denied request is aborted with 429.
func admit(c *gin.Context, limiter ratelimit.Limiter, identity string) bool {
	// Route templates keep /bookings/:id as one endpoint.
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}

	d := limiter.Check(c.Request.Context(), c.Request.Method, path, identity)
	c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

	if !d.Allowed {
		c.Header("Retry-After", strconv.Itoa(d.RetryAfter))
		abort(c, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// Throttle sheds load once the process-wide token bucket is empty.
func Throttle(bucket *ratelimit.TokenBucket) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !bucket.Consume(1) {
			c.Header("Retry-After", "1")
			abort(c, http.StatusServiceUnavailable, "server busy")
			return
		}
		c.Next()
	}
}
