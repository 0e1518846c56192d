package handlers

import (
	"net/http"
	"strings"

	"github.com/jordanlanch/leaddesk/pkg/analytics"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/duplicates"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/labstack/echo/v4"
)

// Duplicate actions.
const (
	duplicateMerge        = "merge"
	duplicateNotDuplicate = "not_duplicate"
)

// DuplicateHandler exposes the matching engine.
type DuplicateHandler struct {
	duplicates *duplicates.Service
	analytics  *analytics.Service
	log        logger.Logger
}

// NewDuplicateHandler creates a new duplicate handler
func NewDuplicateHandler(svc *duplicates.Service, stats *analytics.Service, log logger.Logger) *DuplicateHandler {
	return &DuplicateHandler{duplicates: svc, analytics: stats, log: log}
}

// duplicateActionRequest merges DuplicateID into PrimaryID, or marks the two
// leads as distinct.
type duplicateActionRequest struct {
	Action      string `json:"action"`
	PrimaryID   int    `json:"primary_id"`
	DuplicateID int    `json:"duplicate_id"`
}

// Scan godoc
// @Summary Find duplicate candidates
// @Description Email groups, phone groups and similar-name pairs. Storage failures return an empty degraded report.
// @Tags Duplicates
// @Produce json
// @Success 200 {object} duplicates.Report
// @Router /api/v1/admin/duplicates [get]
func (h *DuplicateHandler) Scan(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	return c.JSON(http.StatusOK, h.duplicates.Scan(ctx))
}

// Action godoc
// @Summary Resolve a duplicate candidate
// @Description action=merge folds duplicate_id into primary_id; action=not_duplicate suppresses the pair.
// @Tags Duplicates
// @Accept json
// @Produce json
// @Param body body duplicateActionRequest true "Action"
// @Success 200 {object} models.Lead
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/admin/duplicates [post]
func (h *DuplicateHandler) Action(c echo.Context) error {
	var req duplicateActionRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	switch strings.TrimSpace(req.Action) {
	case duplicateMerge:
		lead, err := h.duplicates.Merge(ctx, req.PrimaryID, req.DuplicateID, currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		h.log.Info("leads merged", "primary_id", req.PrimaryID, "duplicate_id", req.DuplicateID, "actor_id", currentUserID(c))
		h.analytics.Invalidate(ctx)
		return c.JSON(http.StatusOK, lead)
	case duplicateNotDuplicate:
		if err := h.duplicates.MarkNotDuplicate(ctx, req.PrimaryID, req.DuplicateID, currentUserID(c)); err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, idResponse{ID: req.PrimaryID, Message: "Marked as not duplicate"})
	}
	return fail(c, domain.NewBadRequestError("action must be merge or not_duplicate"))
}
