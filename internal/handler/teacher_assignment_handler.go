package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustack-io/campus-api/internal/service"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
	"github.com/edustack-io/campus-api/pkg/response"
)

// TeacherAssignmentHandler handles teaching assignment endpoints.
type TeacherAssignmentHandler struct {
	service *service.TeacherAssignmentService
}

// NewTeacherAssignmentHandler constructs a teacher assignment handler.
func NewTeacherAssignmentHandler(svc *service.TeacherAssignmentService) *TeacherAssignmentHandler {
	return &TeacherAssignmentHandler{service: svc}
}

// ListByTeacher godoc
// @Summary List a teacher's assignments
// @Tags TeacherAssignments
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/assignments [get]
func (h *TeacherAssignmentHandler) ListByTeacher(c *gin.Context) {
	assignments, err := h.service.ListByTeacher(c.Request.Context(), schoolScope(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// ListByClass godoc
// @Summary List assignments for a class
// @Tags TeacherAssignments
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/assignments [get]
func (h *TeacherAssignmentHandler) ListByClass(c *gin.Context) {
	assignments, err := h.service.ListByClass(c.Request.Context(), schoolScope(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Assign godoc
// @Summary Assign teacher to class/subject
// @Tags TeacherAssignments
// @Accept json
// @Produce json
// @Param payload body service.AssignTeacherRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /teacher-assignments [post]
func (h *TeacherAssignmentHandler) Assign(c *gin.Context) {
	var req service.AssignTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation, "invalid payload"))
		return
	}
	assignment, err := h.service.Assign(c.Request.Context(), schoolScope(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Unassign godoc
// @Summary Remove a teaching assignment
// @Tags TeacherAssignments
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /teacher-assignments/{id} [delete]
func (h *TeacherAssignmentHandler) Unassign(c *gin.Context) {
	if err := h.service.Unassign(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
