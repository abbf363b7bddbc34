package booking

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/handler"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/booking"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
)

type Handler struct {
	service booking.BookingServicer
}

func NewHandler(service booking.BookingServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.PUT("/:id", h.UpdateBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.POST("/:id/confirm", h.ConfirmBooking)
		bookings.POST("/:id/complete", h.CompleteBooking)
		bookings.POST("/:id/no-show", h.MarkNoShow)
	}
}

func (h *Handler) CreateBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, "invalid request body", err)
		return
	}
	// Patients book for themselves unless they say otherwise.
	if req.PatientID == uuid.Nil && actor.Role == model.RolePatient {
		req.PatientID = actor.SubjectID
	}

	b, err := h.service.Create(c.Request.Context(), &req, actor)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(b))
}

func (h *Handler) GetBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}

	b, err := h.service.Get(c.Request.Context(), id, actor)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if b == nil {
		handler.Fail(c, apperrors.NewNotFound("booking", id.String()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(b))
}

func (h *Handler) ListBookings(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	var f model.BookingFilters
	if f.PatientID, ok = handler.OptionalUUIDQuery(c, "patient_id"); !ok {
		return
	}
	if f.ProviderID, ok = handler.OptionalUUIDQuery(c, "provider_id"); !ok {
		return
	}
	if f.From, ok = handler.OptionalTimeQuery(c, "from"); !ok {
		return
	}
	if f.To, ok = handler.OptionalTimeQuery(c, "to"); !ok {
		return
	}
	if s := c.Query("status"); s != "" {
		status := model.BookingStatus(s)
		if !status.Valid() {
			handler.BadRequest(c, "invalid status", nil)
			return
		}
		f.Status = &status
	}
	f.Page, _ = strconv.Atoi(c.Query("page"))
	f.Limit, _ = strconv.Atoi(c.Query("limit"))

	page, err := h.service.List(c.Request.Context(), actor, f)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(page))
}

func (h *Handler) UpdateBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, "invalid request body", err)
		return
	}

	b, err := h.service.Update(c.Request.Context(), id, &req, actor)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(b))
}

func (h *Handler) CancelBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, "invalid request body", err)
		return
	}

	res, err := h.service.Cancel(c.Request.Context(), id, req.Reason, actor)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

func (h *Handler) ConfirmBooking(c *gin.Context) {
	h.transition(c, h.service.Confirm)
}

func (h *Handler) CompleteBooking(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	h.transition(c, h.service.MarkNoShow)
}

func (h *Handler) transition(c *gin.Context, apply func(ctx context.Context, id uuid.UUID, actor model.Actor) error) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := apply(c.Request.Context(), id, actor); err != nil {
		handler.Fail(c, err)
		return
	}

	b, err := h.service.Get(c.Request.Context(), id, actor)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(b))
}
