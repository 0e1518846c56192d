package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/analytics"
	apimw "github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/export"
	importpkg "github.com/jordanlanch/leaddesk/pkg/import"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/slack"
	"github.com/labstack/echo/v4"
)

// HeaderExportTruncated is set on exports cut at export.MaxRows.
const HeaderExportTruncated = "X-Export-Truncated"

// maxImportSize caps the uploaded CSV.
const maxImportSize = 10 << 20

// TransferHandler handles CSV import and lead export.
type TransferHandler struct {
	importer  *importpkg.CSVImportService
	exporter  *export.Service
	slack     *slack.Service
	analytics *analytics.Service
	metrics   *metrics.Metrics
	log       logger.Logger
}

// NewTransferHandler creates a new import/export handler. notifier and m may be nil.
func NewTransferHandler(importer *importpkg.CSVImportService, exporter *export.Service, notifier *slack.Service, stats *analytics.Service, m *metrics.Metrics, log logger.Logger) *TransferHandler {
	return &TransferHandler{
		importer:  importer,
		exporter:  exporter,
		slack:     notifier,
		analytics: stats,
		metrics:   m,
		log:       log,
	}
}

// Import godoc
// @Summary Import leads from CSV
// @Description Multipart upload in field csv_file. Rows that fail validation are skipped and reported.
// @Tags Leads
// @Accept multipart/form-data
// @Produce json
// @Param csv_file formData file true "CSV file"
// @Success 200 {object} importpkg.ImportResult
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/admin/leads/import [post]
func (h *TransferHandler) Import(c echo.Context) error {
	fh, err := c.FormFile("csv_file")
	if err != nil {
		return fail(c, domain.NewBadRequestError("csv_file is required"))
	}
	if fh.Size > maxImportSize {
		return fail(c, domain.NewValidationError(fmt.Sprintf("csv_file exceeds %d MB", maxImportSize>>20)))
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".csv") {
		return fail(c, domain.NewValidationError("csv_file must be a .csv file"))
	}
	src, err := fh.Open()
	if err != nil {
		return fail(c, domain.NewBadRequestError("csv_file could not be read"))
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Minute)
	defer cancel()

	res, err := h.importer.ImportFromCSV(ctx, src, currentUserID(c), importpkg.DefaultCSVConfig())
	if err != nil {
		if errors.Is(err, importpkg.ErrMissingColumn) || errors.Is(err, importpkg.ErrNoHeader) {
			return fail(c, domain.NewValidationError(err.Error()))
		}
		return fail(c, err)
	}

	h.log.Info("csv import", "file", fh.Filename, "total", res.TotalRows, "imported", res.ImportedCount, "skipped", res.SkippedCount)
	if h.metrics != nil {
		h.metrics.RecordImport(res.ImportedCount, res.SkippedCount)
	}
	if res.ImportedCount > 0 {
		h.analytics.Invalidate(ctx)
	}
	if h.slack != nil {
		email := ""
		if sess, ok := apimw.CurrentSession(c); ok {
			email = sess.Email
		}
		if err := h.slack.NotifyImportComplete(ctx, email, res.ImportedCount, res.SkippedCount); err != nil {
			h.log.Warn("slack import notification failed", "error", err)
		}
	}
	return c.JSON(http.StatusOK, res)
}

// Export godoc
// @Summary Export leads
// @Description Streams the leads matching the list filters as CSV or Excel, newest first.
// @Tags Leads
// @Produce text/csv
// @Param format query string false "csv (default) or excel"
// @Success 200 {file} file
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/admin/leads/export [get]
func (h *TransferHandler) Export(c echo.Context) error {
	format := export.FormatCSV
	if raw := c.QueryParam("format"); raw != "" {
		var ok bool
		if format, ok = export.ParseFormat(raw); !ok {
			return fail(c, domain.NewValidationError("format must be csv or excel"))
		}
	}
	f, err := leadFilter(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Minute)
	defer cancel()

	var buf bytes.Buffer
	res, err := h.exporter.Export(ctx, &buf, format, f)
	if err != nil {
		return fail(c, err)
	}

	h.log.Info("leads exported", "format", string(format), "rows", res.Rows, "truncated", res.Truncated, "archive_key", res.ArchiveKey)
	if h.metrics != nil {
		h.metrics.RecordExport(string(format))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.Filename))
	if res.Truncated {
		c.Response().Header().Set(HeaderExportTruncated, "true")
	}
	return c.Blob(http.StatusOK, res.ContentType, buf.Bytes())
}
