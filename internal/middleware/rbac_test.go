package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/edustack-io/campus-api/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func rbacRouter(claims *models.JWTClaims, roles ...models.UserRole) *gin.Engine {
	r := gin.New()
	r.GET("/guarded",
		func(c *gin.Context) {
			if claims != nil {
				c.Set(ContextUserKey, claims)
			}
		},
		RequireRoles(roles...),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		},
	)
	return r
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}, models.RoleSuperAdmin, models.RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, models.RoleSuperAdmin, models.RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesRejectsMissingClaims(t *testing.T) {
	r := rbacRouter(nil, models.RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
