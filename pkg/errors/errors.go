package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Common error codes
const (
	ErrValidation ErrorCode = iota + 1000
	ErrOutOfWindow
	ErrNotFound
	ErrNotActive
	ErrConflict
	ErrAuthorization
	ErrInvalidState
	ErrRangeTooLarge
	ErrTransient
)

var codeNames = map[ErrorCode]string{
	ErrValidation:    "validation_error",
	ErrOutOfWindow:   "out_of_window",
	ErrNotFound:      "not_found",
	ErrNotActive:     "not_active",
	ErrConflict:      "conflict",
	ErrAuthorization: "authorization_error",
	ErrInvalidState:  "invalid_state",
	ErrRangeTooLarge: "range_too_large",
	ErrTransient:     "transient_error",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "internal_error"
}

// AppError represents an application error. Entity and ID identify the
// record the failure is about so the boundary layer can report it.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Entity  string    `json:"entity,omitempty"`
	ID      string    `json:"id,omitempty"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrValidation, ErrOutOfWindow, ErrRangeTooLarge:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrNotActive, ErrInvalidState:
		return http.StatusUnprocessableEntity
	case ErrConflict:
		return http.StatusConflict
	case ErrAuthorization:
		return http.StatusForbidden
	case ErrTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry the same request.
func (e *AppError) Retryable() bool {
	return e.Code == ErrTransient
}

// Error constructors
func NewValidation(message string, err error) *AppError {
	return &AppError{Code: ErrValidation, Message: message, Err: err}
}

// NewOutOfWindow is a validation failure for a time outside the bookable window.
func NewOutOfWindow(message string) *AppError {
	return &AppError{Code: ErrOutOfWindow, Message: message}
}

func NewNotFound(entity, id string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Entity:  entity,
		ID:      id,
	}
}

func NewNotActive(entity, id string) *AppError {
	return &AppError{
		Code:    ErrNotActive,
		Message: fmt.Sprintf("%s is not active", entity),
		Entity:  entity,
		ID:      id,
	}
}

func NewConflict(entity, id, reason string) *AppError {
	return &AppError{Code: ErrConflict, Message: reason, Entity: entity, ID: id}
}

func NewAuthorization(entity, id, reason string) *AppError {
	return &AppError{Code: ErrAuthorization, Message: reason, Entity: entity, ID: id}
}

func NewInvalidState(entity, id, reason string) *AppError {
	return &AppError{Code: ErrInvalidState, Message: reason, Entity: entity, ID: id}
}

func NewRangeTooLarge(maxDays int) *AppError {
	return &AppError{
		Code:    ErrRangeTooLarge,
		Message: fmt.Sprintf("date range exceeds %d days", maxDays),
	}
}

func NewTransient(operation string, err error) *AppError {
	return &AppError{
		Code:    ErrTransient,
		Message: fmt.Sprintf("%s: dependency unavailable", operation),
		Err:     err,
	}
}

// WithEntity sets the entity reference on a copy of the error.
func (e *AppError) WithEntity(entity, id string) *AppError {
	cp := *e
	cp.Entity = entity
	cp.ID = id
	return &cp
}

// CodeOf returns the code of the first AppError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return 0
}

// Is reports whether err carries the given code. OutOfWindow also matches
// ErrValidation since it is a validation subtype.
func Is(err error, code ErrorCode) bool {
	c := CodeOf(err)
	if c == code {
		return true
	}
	return code == ErrValidation && c == ErrOutOfWindow
}
