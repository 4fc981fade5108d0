package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/archiveone/pan-auction/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newPermissionRouter(permission string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/protected", JWTAuth(), RequirePermission(permission), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func issueToken(t *testing.T, permissions ...string) string {
	t.Helper()
	service := auth.NewService(string(jwtSecret()))
	service.RegisterAPICredentials("client-1", "secret-1", permissions...)
	token, err := service.GenerateToken(auth.Credentials{APIKey: "client-1", APISecret: "secret-1"})
	require.NoError(t, err)
	return token.Token
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required string
		want     int
	}{
		{"granted permission passes", []string{auth.PermissionBid}, auth.PermissionBid, http.StatusOK},
		{"missing permission is forbidden", []string{auth.PermissionBid}, auth.PermissionSell, http.StatusForbidden},
		{"default grant carries all permissions", nil, auth.PermissionSell, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newPermissionRouter(tt.required)

			req := httptest.NewRequest(http.MethodPost, "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+issueToken(t, tt.granted...))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequirePermissionWithoutToken(t *testing.T) {
	router := newPermissionRouter(auth.PermissionBid)

	req := httptest.NewRequest(http.MethodPost, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
