package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/analytics"
	"github.com/labstack/echo/v4"
)

// DashboardHandler serves the admin dashboard.
type DashboardHandler struct {
	analytics *analytics.Service
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(svc *analytics.Service) *DashboardHandler {
	return &DashboardHandler{analytics: svc}
}

// Stats returns the dashboard. It never fails; storage errors yield zeroed,
// degraded stats.
func (h *DashboardHandler) Stats(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if queryBool(c, "refresh") {
		h.analytics.Invalidate(ctx)
	}
	return c.JSON(http.StatusOK, h.analytics.Dashboard(ctx))
}
