package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(2, 1)
	defer rl.Close()

	a := rl.GetLimiter("192.168.1.1")
	b := rl.GetLimiter("192.168.1.2")
	assert.True(t, a.Allow())
	assert.True(t, b.Allow())
	assert.False(t, a.Allow())
	assert.False(t, b.Allow())
	assert.Same(t, a, rl.GetLimiter("192.168.1.1"))
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Close()
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.GetLimiter("old")
	now = now.Add(2 * time.Minute)
	rl.GetLimiter("recent")
	now = now.Add(2 * time.Minute)
	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "old")
	assert.Contains(t, rl.visitors, "recent")
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, 1)
	defer rl.Close()

	e := echo.New()
	e.Use(rl.RateLimitMiddleware())
	e.GET("/test", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)
	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")
}

func TestRequireAdmin(t *testing.T) {
	e := echo.New()
	handler := RequireAdmin()(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	tests := []struct {
		name   string
		userID any
		role   string
		status int
	}{
		{"anonymous", nil, "", http.StatusUnauthorized},
		{"team member", 2, "team", http.StatusForbidden},
		{"admin", 1, "admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/admin/leads", nil), rec)
			if tt.userID != nil {
				c.Set("user_id", tt.userID)
				c.Set("user_role", tt.role)
			}
			assert.NoError(t, handler(c))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
