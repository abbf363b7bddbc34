package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/ratelimit"
	"github.com/jwalitptl/booking-api/pkg/auth"
)

const ContextActor = "actor"

type AuthMiddleware struct {
	jwt     auth.JWTService
	limiter ratelimit.Limiter
}

// NewAuthMiddleware builds the bearer token checks. When limiter is set,
// rejected requests are counted against the caller's address so token
// guessing is limited like any other traffic.
func NewAuthMiddleware(jwt auth.JWTService, limiter ratelimit.Limiter) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, limiter: limiter}
}

// Authenticate verifies the bearer token and stores the actor in the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.reject(c, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.reject(c, "invalid authorization format")
			return
		}

		actor, err := m.jwt.ValidateToken(parts[1])
		if err != nil {
			m.reject(c, "invalid token")
			return
		}

		c.Set(ContextActor, *actor)
		c.Next()
	}
}

func (m *AuthMiddleware) reject(c *gin.Context, message string) {
	if m.limiter != nil && !admit(c, m.limiter, ratelimit.AddressIdentity(c.ClientIP())) {
		return
	}
	abort(c, http.StatusUnauthorized, message)
}

// RequireRole rejects actors whose role is not listed
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "not authenticated")
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "permission denied")
	}
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    status,
		Message: message,
		TraceID: c.GetString(ContextRequestID),
	})
}
