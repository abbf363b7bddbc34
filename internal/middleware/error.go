package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/validator"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code      int                    `json:"code"`
	Error     string                 `json:"error,omitempty"`
	Message   string                 `json:"message"`
	Entity    string                 `json:"entity,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Details   []validator.FieldError `json:"details,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// ErrorHandler renders the last error a handler attached with c.Error.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		traceID := c.GetString(ContextRequestID)
		lastErr := c.Errors.Last().Err
		resp := ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Internal server error",
			TraceID: traceID,
		}

		var appErr *apperrors.AppError
		if errors.As(lastErr, &appErr) {
			resp.Code = appErr.StatusCode()
			resp.Error = appErr.Code.String()
			resp.Message = appErr.Message
			resp.Entity = appErr.Entity
			resp.ID = appErr.ID
			resp.Retryable = appErr.Retryable()

			var fieldErrs validator.Errors
			if errors.As(appErr.Err, &fieldErrs) {
				resp.Details = fieldErrs
			}
		}

		if resp.Code >= http.StatusInternalServerError {
			log.Error(lastErr, "Request error",
				"trace_id", traceID,
				"path", c.Request.URL.Path,
				"method", c.Request.Method)
		}

		c.JSON(resp.Code, resp)
	}
}
