package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/cache"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports dependency status.
type HealthHandler struct {
	db    *database.Client
	cache *cache.Client
}

// NewHealthHandler creates a new health handler. redis may be nil.
func NewHealthHandler(db *database.Client, redis *cache.Client) *HealthHandler {
	return &HealthHandler{db: db, cache: redis}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Check answers 200 when the database is reachable and 503 otherwise.
// A missing cache only degrades the report.
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Services: map[string]string{"database": "ok"}}
	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Services["database"] = "down"
		code = http.StatusServiceUnavailable
	}
	if h.cache != nil {
		resp.Services["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			resp.Services["cache"] = "down"
			if code == http.StatusOK {
				resp.Status = "degraded"
			}
		}
	}
	return c.JSON(code, resp)
}
