package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edustack-io/campus-api/internal/service"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
	"github.com/edustack-io/campus-api/pkg/response"
)

// FeedHandler exposes the iCalendar feed. The feed endpoint itself is
// unauthenticated; the signed token in the URL is the credential.
type FeedHandler struct {
	service *service.CalendarFeedService
}

// NewFeedHandler constructs a feed handler.
func NewFeedHandler(svc *service.CalendarFeedService) *FeedHandler {
	return &FeedHandler{service: svc}
}

// Token godoc
// @Summary Issue a calendar feed token
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendar/feed/token [post]
func (h *FeedHandler) Token(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token, expiresAt, err := h.service.GenerateToken(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"url":        "/feeds/" + token + ".ics",
	}, nil)
}

// Feed godoc
// @Summary Serve the iCalendar feed
// @Tags Calendar
// @Produce text/calendar
// @Param token path string true "Feed token"
// @Success 200 {string} string "iCalendar document"
// @Router /feeds/{token} [get]
func (h *FeedHandler) Feed(c *gin.Context) {
	token := strings.TrimSuffix(c.Param("token"), ".ics")
	ics, err := h.service.BuildFeed(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="calendar.ics"`)
	c.String(http.StatusOK, ics)
}
