package availability

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/handler"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/availability"
)

type Handler struct {
	service availability.AvailabilityServicer
}

func NewHandler(service availability.AvailabilityServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/providers/:id/availability", h.GetAvailability)
	r.GET("/providers/:id/availability/range", h.GetAvailabilityRange)
	r.GET("/providers/:id/next-available", h.GetNextAvailableSlot)
	r.GET("/clinics/:id/available-providers", h.SearchAvailableProviders)
}

func (h *Handler) GetAvailability(c *gin.Context) {
	providerID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	serviceTypeID, ok := handler.OptionalUUIDQuery(c, "service_type_id")
	if !ok {
		return
	}

	slots, err := h.service.GetAvailability(c.Request.Context(), model.AvailabilityQuery{
		ProviderID:    providerID,
		Date:          c.Query("date"),
		ServiceTypeID: serviceTypeID,
		Timezone:      c.Query("timezone"),
	})
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}

func (h *Handler) GetAvailabilityRange(c *gin.Context) {
	providerID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	serviceTypeID, ok := handler.OptionalUUIDQuery(c, "service_type_id")
	if !ok {
		return
	}

	days, err := h.service.GetAvailabilityRange(c.Request.Context(), model.AvailabilityRangeQuery{
		ProviderID:    providerID,
		StartDate:     c.Query("start_date"),
		EndDate:       c.Query("end_date"),
		ServiceTypeID: serviceTypeID,
		Timezone:      c.Query("timezone"),
	})
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(days))
}

func (h *Handler) GetNextAvailableSlot(c *gin.Context) {
	providerID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	serviceTypeID, ok := handler.OptionalUUIDQuery(c, "service_type_id")
	if !ok {
		return
	}

	slot, err := h.service.GetNextAvailableSlot(c.Request.Context(), providerID, serviceTypeID, c.Query("timezone"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	// A null slot means nothing is free within the search horizon.
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"slot": slot}))
}

func (h *Handler) SearchAvailableProviders(c *gin.Context) {
	clinicID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	serviceTypeID, ok := handler.OptionalUUIDQuery(c, "service_type_id")
	if !ok {
		return
	}

	results, err := h.service.SearchAvailableProviders(c.Request.Context(), model.ProviderSearchQuery{
		ClinicID:      clinicID,
		Date:          c.Query("date"),
		ServiceTypeID: serviceTypeID,
		PreferredTime: c.Query("preferred_time"),
		Timezone:      c.Query("timezone"),
	})
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(results))
}
