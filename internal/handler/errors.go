package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/model"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
)

// Fail hands err to the error middleware and stops the handler chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// BadRequest reports a malformed request body or parameter.
func BadRequest(c *gin.Context, message string, err error) {
	Fail(c, apperrors.NewValidation(message, err))
}

// Actor returns the authenticated caller. Routes are mounted behind the
// auth middleware so a missing actor is a wiring bug.
func Actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		Fail(c, apperrors.NewAuthorization("", "", "not authenticated"))
	}
	return actor, ok
}

// UUIDParam parses a path parameter, failing the request when it is invalid.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		BadRequest(c, "invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

// OptionalUUIDQuery parses an optional query parameter.
func OptionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		BadRequest(c, "invalid "+name, err)
		return nil, false
	}
	return &id, true
}

// OptionalTimeQuery parses an optional RFC 3339 query parameter.
func OptionalTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		BadRequest(c, "invalid "+name+", expected RFC 3339", err)
		return nil, false
	}
	return &t, true
}
