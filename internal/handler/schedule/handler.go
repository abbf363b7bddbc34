package schedule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/handler"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/schedule"
)

type Handler struct {
	service schedule.ScheduleServicer
}

func NewHandler(service schedule.ScheduleServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	providers := r.Group("/providers/:id")
	{
		providers.GET("/schedules", h.ListSchedules)
		providers.PUT("/schedules", h.ReplaceSchedules)
		providers.POST("/blocked-slots", h.BlockSlot)
		providers.DELETE("/blocked-slots/:at", h.UnblockSlot)
	}
}

func (h *Handler) ListSchedules(c *gin.Context) {
	providerID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	schedules, err := h.service.ListSchedules(c.Request.Context(), providerID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(schedules))
}

func (h *Handler) ReplaceSchedules(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	providerID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.ReplaceSchedulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, "invalid request body", err)
		return
	}

	schedules, err := h.service.ReplaceSchedules(c.Request.Context(), providerID, &req, actor)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(schedules))
}

func (h *Handler) BlockSlot(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	providerID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.BlockSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, "invalid request body", err)
		return
	}

	slot, err := h.service.BlockSlot(c.Request.Context(), providerID, &req, actor)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(slot))
}

func (h *Handler) UnblockSlot(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	providerID, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	at, err := time.Parse(time.RFC3339, c.Param("at"))
	if err != nil {
		handler.BadRequest(c, "invalid blocked slot time, expected RFC 3339", err)
		return
	}

	if err := h.service.UnblockSlot(c.Request.Context(), providerID, at, actor); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
