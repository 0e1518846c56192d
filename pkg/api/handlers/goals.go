package handlers

import (
	"net/http"
	"strings"

	"github.com/jordanlanch/leaddesk/pkg/goals"
	"github.com/labstack/echo/v4"
)

// GoalHandler manages monthly goals.
type GoalHandler struct {
	goals *goals.Service
}

// NewGoalHandler creates a new goal handler
func NewGoalHandler(svc *goals.Service) *GoalHandler {
	return &GoalHandler{goals: svc}
}

func (h *GoalHandler) period(c echo.Context) string {
	if p := strings.TrimSpace(c.QueryParam("period")); p != "" {
		return p
	}
	return h.goals.CurrentPeriod()
}

// List returns the goals of ?period= (YYYY-MM, default the current month).
func (h *GoalHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.goals.List(ctx, h.period(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Set creates or replaces the goal of a member for a period.
func (h *GoalHandler) Set(c echo.Context) error {
	var req goals.SetGoalRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	goal, err := h.goals.Set(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, goal)
}

// Progress compares each goal with the member's results in the period.
func (h *GoalHandler) Progress(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.goals.Progress(ctx, h.period(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}
