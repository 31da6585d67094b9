package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edustack-io/campus-api/internal/middleware"
	"github.com/edustack-io/campus-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// schoolScope resolves the tenant for the request. SUPERADMIN accounts may
// target any school through the school_id query parameter; everyone else is
// pinned to their own school.
func schoolScope(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil {
		return ""
	}
	if claims.Role == models.RoleSuperAdmin {
		if id := c.Query("school_id"); id != "" {
			return id
		}
	}
	return claims.SchoolID
}
