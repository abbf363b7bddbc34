package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-api/internal/cache"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/ratelimit"
	"github.com/jwalitptl/booking-api/pkg/auth"
	"github.com/jwalitptl/booking-api/pkg/clock"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthenticate(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", "booking-api", time.Hour)
	m := NewAuthMiddleware(jwtSvc, nil)
	actor := model.Actor{SubjectID: uuid.New(), Role: model.RoleStaff}

	r := gin.New()
	r.GET("/me", m.Authenticate(), m.RequireRole(model.RoleStaff), func(c *gin.Context) {
		got, _ := ActorFrom(c)
		c.JSON(http.StatusOK, got)
	})
	r.GET("/patients-only", m.Authenticate(), m.RequireRole(model.RolePatient), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	token, err := jwtSvc.GenerateAccessToken(actor)
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc", http.StatusUnauthorized},
		{"valid", "/me", "Bearer " + token, http.StatusOK},
		{"wrong role", "/patients-only", "Bearer " + token, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestAuthenticate_CountsRejectedByAddress(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 30, 0, time.UTC))
	limiter := ratelimit.NewService(cache.NewMemory(time.Minute), nil, clk, nil, nil, ratelimit.Config{
		Default: ratelimit.Rule{Window: time.Minute, MaxRequests: 2},
	})
	jwtSvc := auth.NewJWTService("secret", "booking-api", time.Hour)
	m := NewAuthMiddleware(jwtSvc, limiter)

	r := gin.New()
	r.GET("/bookings", m.Authenticate(), RateLimit(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer guess").Code)
	w := do("Bearer guess")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	// A valid token is counted by subject, not by the exhausted address.
	token, err := jwtSvc.GenerateAccessToken(model.Actor{SubjectID: uuid.New(), Role: model.RolePatient})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do("Bearer "+token).Code)
}

func TestRateLimit(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 30, 0, time.UTC))
	limiter := ratelimit.NewService(cache.NewMemory(time.Minute), nil, clk, nil, nil, ratelimit.Config{
		Default: ratelimit.Rule{Window: time.Minute, MaxRequests: 2},
	})

	r := gin.New()
	r.Use(RateLimit(limiter))
	r.GET("/bookings/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.7:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("/bookings/1").Code)
	w := do("/bookings/2")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do("/bookings/3")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, decodeError(t, w).Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen, _ = logger.RequestIDFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(HeaderXRequestID, header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("")
	_, err := uuid.Parse(w.Header().Get(HeaderXRequestID))
	require.NoError(t, err)
	assert.Equal(t, w.Header().Get(HeaderXRequestID), seen)

	given := uuid.NewString()
	w = do(given)
	assert.Equal(t, given, w.Header().Get(HeaderXRequestID))
	assert.Equal(t, given, seen)

	w = do("not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, w.Header().Get(HeaderXRequestID), seen)
}

func TestThrottle(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	r := gin.New()
	r.Use(Throttle(ratelimit.NewTokenBucket(1, 1, clk)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(logger.Nop()))
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(apperrors.NewConflict("provider", "p1", "time slot is already booked"))
	})
	r.GET("/window", func(c *gin.Context) {
		_ = c.Error(apperrors.NewOutOfWindow("too soon"))
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("driver exploded"))
	})
	r.GET("/down", func(c *gin.Context) {
		_ = c.Error(apperrors.NewTransient("list bookings", context.DeadlineExceeded))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "conflict", resp.Error)
	assert.Equal(t, "provider", resp.Entity)
	assert.NotEmpty(t, resp.TraceID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/window", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "out_of_window", decodeError(t, w).Error)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decodeError(t, w).Message)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, decodeError(t, w).Retryable)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(logger.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
}
