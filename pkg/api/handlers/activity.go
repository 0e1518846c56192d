package handlers

import (
	"net/http"
	"strings"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/labstack/echo/v4"
)

// ActivityHandler serves the activity report.
type ActivityHandler struct {
	activities *activity.Service
	log        logger.Logger
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(svc *activity.Service, log logger.Logger) *ActivityHandler {
	return &ActivityHandler{activities: svc, log: log}
}

type activityReport struct {
	Activities []activity.Activity `json:"activities"`
	Count      int                 `json:"count"`
	ByType     map[string]int      `json:"by_type"`
	Degraded   bool                `json:"degraded,omitempty"`
}

// List returns the most recent activities matching the query filters.
// Storage failures answer an empty degraded report.
func (h *ActivityHandler) List(c echo.Context) error {
	f := activity.Filter{
		LeadID:       queryInt(c, "lead_id", 0),
		UserID:       queryInt(c, "user_id", 0),
		ActivityType: strings.TrimSpace(c.QueryParam("activity_type")),
		Limit:        queryInt(c, "limit", 0),
	}
	var err error
	if f.DateFrom, err = queryDate(c, "date_from", false); err != nil {
		return fail(c, err)
	}
	if f.DateTo, err = queryDate(c, "date_to", false); err != nil {
		return fail(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.activities.List(ctx, f)
	if err == nil {
		var byType map[string]int
		if byType, err = h.activities.CountByType(ctx, f); err == nil {
			return c.JSON(http.StatusOK, activityReport{Activities: list, Count: len(list), ByType: byType})
		}
	}
	if !isStorageError(err) {
		return fail(c, err)
	}
	h.log.Error("activity report degraded", "error", err)
	return c.JSON(http.StatusOK, activityReport{
		Activities: []activity.Activity{},
		ByType:     map[string]int{},
		Degraded:   true,
	})
}

// Delete removes one activity entry.
func (h *ActivityHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.activities.Delete(ctx, id); err != nil {
		return fail(c, err)
	}
	return deleted(c, id, "Activity")
}
