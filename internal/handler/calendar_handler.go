package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edustack-io/campus-api/internal/models"
	"github.com/edustack-io/campus-api/internal/service"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
	"github.com/edustack-io/campus-api/pkg/response"
)

// CalendarHandler handles calendar event and category endpoints. Every read
// goes through the visibility filter using the caller's claims.
type CalendarHandler struct {
	service *service.CalendarService
}

// NewCalendarHandler constructs a calendar handler.
func NewCalendarHandler(svc *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{service: svc}
}

func viewerFromContext(c *gin.Context) (models.UserContext, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.UserContext{}, false
	}
	viewer := claims.Viewer()
	if claims.Role == models.RoleSuperAdmin {
		if id := c.Query("school_id"); id != "" {
			viewer.SchoolID = id
		}
	}
	return viewer, true
}

// parseWindow reads the start/end query parameters. A missing window defaults
// to the current month in UTC.
func parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid start timestamp")
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid end timestamp")
		}
		end = parsed
	}
	return start, end, nil
}

// ListWindow godoc
// @Summary List visible events with occurrences in a window
// @Tags Calendar
// @Produce json
// @Param start query string false "Window start (RFC3339)"
// @Param end query string false "Window end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /calendar/events [get]
func (h *CalendarHandler) ListWindow(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start, end, err := parseWindow(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	events, err := h.service.ListWindow(c.Request.Context(), viewer, start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Get godoc
// @Summary Get event by id
// @Tags Calendar
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /calendar/events/{id} [get]
func (h *CalendarHandler) Get(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	event, err := h.service.GetEvent(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create calendar event
// @Tags Calendar
// @Accept json
// @Produce json
// @Param payload body service.CreateEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /calendar/events [post]
func (h *CalendarHandler) Create(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation, "invalid event payload"))
		return
	}
	event, err := h.service.CreateEvent(c.Request.Context(), viewer, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update calendar event
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.UpdateEventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /calendar/events/{id} [put]
func (h *CalendarHandler) Update(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation, "invalid event payload"))
		return
	}
	event, err := h.service.UpdateEvent(c.Request.Context(), viewer, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete calendar event
// @Tags Calendar
// @Param id path string true "Event ID"
// @Success 204
// @Router /calendar/events/{id} [delete]
func (h *CalendarHandler) Delete(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteEvent(c.Request.Context(), viewer, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// NextOccurrences godoc
// @Summary Next occurrences of an event
// @Tags Calendar
// @Produce json
// @Param id path string true "Event ID"
// @Param count query int false "Number of occurrences"
// @Success 200 {object} response.Envelope
// @Router /calendar/events/{id}/occurrences [get]
func (h *CalendarHandler) NextOccurrences(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count := 5
	if raw := c.Query("count"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			count = parsed
		}
	}
	occurrences, err := h.service.NextOccurrences(c.Request.Context(), viewer, c.Param("id"), count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occurrences, nil)
}

// CountOccurrences godoc
// @Summary Count occurrences of an event in a window
// @Tags Calendar
// @Produce json
// @Param id path string true "Event ID"
// @Param start query string false "Window start (RFC3339)"
// @Param end query string false "Window end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /calendar/events/{id}/occurrences/count [get]
func (h *CalendarHandler) CountOccurrences(c *gin.Context) {
	viewer, ok := viewerFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start, end, err := parseWindow(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	count, err := h.service.CountOccurrences(c.Request.Context(), viewer, c.Param("id"), start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}

// ListCategories godoc
// @Summary List calendar categories
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendar/categories [get]
func (h *CalendarHandler) ListCategories(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context(), schoolScope(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// CreateCategory godoc
// @Summary Create calendar category
// @Tags Calendar
// @Accept json
// @Produce json
// @Param payload body service.CreateCategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Router /calendar/categories [post]
func (h *CalendarHandler) CreateCategory(c *gin.Context) {
	var req service.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation, "invalid category payload"))
		return
	}
	category, err := h.service.CreateCategory(c.Request.Context(), schoolScope(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// DeleteCategory godoc
// @Summary Delete calendar category
// @Tags Calendar
// @Param id path string true "Category ID"
// @Success 204
// @Router /calendar/categories/{id} [delete]
func (h *CalendarHandler) DeleteCategory(c *gin.Context) {
	if err := h.service.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
