package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edustack-io/campus-api/internal/service"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
	"github.com/edustack-io/campus-api/pkg/response"
)

// OnboardingHandler exposes the onboarding progress tracker.
type OnboardingHandler struct {
	service *service.OnboardingService
}

// NewOnboardingHandler constructs an onboarding handler.
func NewOnboardingHandler(svc *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{service: svc}
}

// Progress godoc
// @Summary Get onboarding progress
// @Tags Onboarding
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /onboarding [get]
func (h *OnboardingHandler) Progress(c *gin.Context) {
	progress, err := h.service.GetProgress(c.Request.Context(), schoolScope(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// UpdateStep godoc
// @Summary Update an onboarding step
// @Tags Onboarding
// @Accept json
// @Produce json
// @Param step path int true "Step number"
// @Param payload body service.UpdateOnboardingStepRequest true "Step payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /onboarding/steps/{step} [put]
func (h *OnboardingHandler) UpdateStep(c *gin.Context) {
	stepNumber, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid step number"))
		return
	}

	var req service.UpdateOnboardingStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation, "invalid step payload"))
		return
	}

	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	step, err := h.service.UpdateStep(c.Request.Context(), schoolScope(c), stepNumber, req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, step, nil)
}

// Reset godoc
// @Summary Reset onboarding progress
// @Tags Onboarding
// @Success 204
// @Router /onboarding/reset [post]
func (h *OnboardingHandler) Reset(c *gin.Context) {
	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	if err := h.service.Reset(c.Request.Context(), schoolScope(c), actorID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
