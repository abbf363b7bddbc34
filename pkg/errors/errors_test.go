package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_OutOfWindowIsValidation(t *testing.T) {
	err := fmt.Errorf("create: %w", NewOutOfWindow("too soon"))

	assert.True(t, Is(err, ErrOutOfWindow))
	assert.True(t, Is(err, ErrValidation))
	assert.False(t, Is(err, ErrConflict))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(0), CodeOf(stderrors.New("boom")))
}

func TestStatusCode(t *testing.T) {
	cases := map[*AppError]int{
		NewValidation("bad", nil):               http.StatusBadRequest,
		NewNotFound("booking", "1"):             http.StatusNotFound,
		NewConflict("booking", "1", "taken"):    http.StatusConflict,
		NewAuthorization("booking", "1", "no"):  http.StatusForbidden,
		NewInvalidState("booking", "1", "done"): http.StatusUnprocessableEntity,
		NewRangeTooLarge(30):                    http.StatusBadRequest,
		NewTransient("query", nil):              http.StatusServiceUnavailable,
	}
	for err, status := range cases {
		assert.Equal(t, status, err.StatusCode(), err.Error())
	}
}

func TestTransient_UnwrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewTransient("list bookings", cause)

	assert.True(t, err.Retryable())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "out_of_window", ErrOutOfWindow.String())
	assert.Equal(t, "internal_error", ErrorCode(0).String())
}
