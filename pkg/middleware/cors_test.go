package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
)

var testOrigins = []string{"http://localhost:3000", "https://admin.leaddesk.io"}

func newCORSEcho() *echo.Echo {
	e := echo.New()
	e.Use(middleware.CORSWithConfig(CORSConfig(testOrigins)))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"local frontend", "http://localhost:3000", true},
		{"production", "https://admin.leaddesk.io", true},
		{"unknown site", "https://evil.com", false},
		{"suffix attack", "https://admin.leaddesk.io.evil.com", false},
		{"plain http", "http://admin.leaddesk.io", false},
		{"other port", "http://localhost:8080", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(echo.HeaderOrigin, tt.origin)
			rec := httptest.NewRecorder()
			newCORSEcho().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			if tt.allowed {
				assert.Equal(t, tt.origin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
				assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
			} else {
				assert.NotEqual(t, tt.origin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set(echo.HeaderOrigin, "https://admin.leaddesk.io")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPatch)
	req.Header.Set(echo.HeaderAccessControlRequestHeaders, "Authorization,Content-Type")
	rec := httptest.NewRecorder()
	newCORSEcho().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	methods := rec.Header().Get(echo.HeaderAccessControlAllowMethods)
	for _, m := range AllowedMethods {
		assert.Contains(t, methods, m)
	}
	headers := rec.Header().Get(echo.HeaderAccessControlAllowHeaders)
	assert.Contains(t, headers, "Authorization")
	assert.Contains(t, headers, "Content-Type")
}
