package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/analytics"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/rules"
	"github.com/labstack/echo/v4"
)

// RuleHandler manages assignment rules.
type RuleHandler struct {
	rules     *rules.Service
	analytics *analytics.Service
	metrics   *metrics.Metrics
	log       logger.Logger
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(svc *rules.Service, stats *analytics.Service, m *metrics.Metrics, log logger.Logger) *RuleHandler {
	return &RuleHandler{rules: svc, analytics: stats, metrics: m, log: log}
}

type testConditionsRequest struct {
	Conditions []rules.Condition `json:"conditions"`
}

// List returns every rule, highest priority first. ?active=true keeps only
// active rules.
func (h *RuleHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.rules.List(ctx, queryBool(c, "active"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Get returns one rule.
func (h *RuleHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.rules.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// Create godoc
// @Summary Create an assignment rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param body body rules.CreateRuleRequest true "Rule"
// @Success 201 {object} rules.Rule
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/admin/rules [post]
func (h *RuleHandler) Create(c echo.Context) error {
	var req rules.CreateRuleRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.rules.Create(ctx, req, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, rule)
}

// Update applies a partial update.
func (h *RuleHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req rules.UpdateRuleRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.rules.Update(ctx, id, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// Delete removes a rule.
func (h *RuleHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.rules.Delete(ctx, id); err != nil {
		return fail(c, err)
	}
	return deleted(c, id, "Rule")
}

// Toggle flips a rule between active and inactive.
func (h *RuleHandler) Toggle(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.rules.Toggle(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	h.log.Info("rule toggled", "rule_id", id, "active", rule.IsActive)
	return c.JSON(http.StatusOK, rule)
}

// Test counts the leads a stored rule matches without changing anything.
func (h *RuleHandler) Test(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.rules.Test(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// TestConditions evaluates unsaved conditions.
func (h *RuleHandler) TestConditions(c echo.Context) error {
	var req testConditionsRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.rules.TestConditions(ctx, req.Conditions)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Apply godoc
// @Summary Apply a rule
// @Description Assigns every currently unassigned lead the rule matches, using its assignment method.
// @Tags Rules
// @Produce json
// @Param id path int true "Rule ID"
// @Success 200 {object} rules.ApplyResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/admin/rules/{id}/apply [post]
func (h *RuleHandler) Apply(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.rules.Apply(ctx, id, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}

	h.log.Info("rule applied", "rule_id", id, "matched", res.Matched, "assigned", res.Assigned)
	if h.metrics != nil {
		h.metrics.RecordRuleAssignments(res.Assigned)
	}
	if res.Assigned > 0 {
		h.analytics.Invalidate(ctx)
	}
	return c.JSON(http.StatusOK, res)
}
