package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univtimetable/optimizer-api/internal/service"
	"github.com/univtimetable/optimizer-api/pkg/response"
)

// ScheduleHandler exposes read views over the activated timetable.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// Active returns the currently activated timetable.
func (h *ScheduleHandler) Active(c *gin.Context) {
	rows, err := h.service.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// ByTeacher returns one teacher's active timetable.
func (h *ScheduleHandler) ByTeacher(c *gin.Context) {
	rows, err := h.service.ByTeacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// ByGroup returns one group's active timetable.
func (h *ScheduleHandler) ByGroup(c *gin.Context) {
	rows, err := h.service.ByGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Conflicts reports double-booked cells of one generation from the database.
func (h *ScheduleHandler) Conflicts(c *gin.Context) {
	conflicts, err := h.service.Conflicts(c.Request.Context(), c.Param("generationId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}
