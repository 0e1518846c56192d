package handlers

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/analytics"
	"github.com/jordanlanch/leaddesk/pkg/bulk"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/labstack/echo/v4"
)

// BatchHandler runs bulk actions over selected leads.
type BatchHandler struct {
	bulk      *bulk.Service
	analytics *analytics.Service
	metrics   *metrics.Metrics
	log       logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *bulk.Service, stats *analytics.Service, m *metrics.Metrics, log logger.Logger) *BatchHandler {
	return &BatchHandler{bulk: svc, analytics: stats, metrics: m, log: log}
}

// Execute godoc
// @Summary Run a bulk action
// @Description Applies one action to every existing lead in lead_ids. Non-numeric ids are ignored.
// @Tags Bulk
// @Accept json
// @Produce json
// @Param body body bulk.Request true "Action and parameters"
// @Success 200 {object} bulk.Result
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/admin/leads/bulk [post]
func (h *BatchHandler) Execute(c echo.Context) error {
	var req bulk.Request
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.bulk.Execute(ctx, req, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}

	h.log.Info("bulk action", "action", res.Action, "requested", res.Requested, "affected", res.Affected, "actor_id", currentUserID(c))
	if h.metrics != nil {
		h.metrics.RecordBulkAction(res.Action, res.Affected)
	}
	if res.Affected > 0 {
		h.analytics.Invalidate(ctx)
	}
	return c.JSON(http.StatusOK, res)
}
