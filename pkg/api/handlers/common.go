// Package handlers implements the HTTP endpoints of the admin back-office.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/jordanlanch/leaddesk/pkg/api/errors"
	apimw "github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

const requestTimeout = 10 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, domain.NewBadRequestError(name + " must be a positive number")
	}
	return id, nil
}

// bind decodes the request body.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return domain.NewBadRequestError("Invalid request body")
	}
	return nil
}

// fail renders a service error.
func fail(c echo.Context, err error) error {
	return apierrors.FromDomain(c, err)
}

// isStorageError reports whether err came from storage rather than from
// the caller's input.
func isStorageError(err error) bool {
	return err != nil && domain.GetErrorCode(err) == domain.ErrCodeInternal
}

func currentUserID(c echo.Context) int {
	return apimw.UserID(c)
}

func queryInt(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.QueryParam(name)))
	if err != nil {
		return def
	}
	return v
}

func queryBool(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}

// queryDate parses a YYYY-MM-DD query parameter as the start of that UTC day.
// endOfDay moves it to the last instant of the day.
func queryDate(c echo.Context, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, domain.NewValidationError(name + " must be a date in YYYY-MM-DD format")
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return &d, nil
}

// leadFilter reads the lead filter shared by the list and export endpoints.
func leadFilter(c echo.Context) (leads.Filter, error) {
	f := leads.Filter{
		Search:     strings.TrimSpace(c.QueryParam("search")),
		Status:     models.LeadStatus(strings.TrimSpace(c.QueryParam("status"))),
		Source:     strings.TrimSpace(c.QueryParam("source")),
		Unassigned: queryBool(c, "unassigned"),
		Page:       queryInt(c, "page", 1),
		Limit:      queryInt(c, "limit", 0),
	}
	if raw := strings.TrimSpace(c.QueryParam("lead_score")); raw != "" {
		score, ok := models.ParseLeadScore(raw)
		if !ok {
			return f, domain.NewValidationError("invalid lead_score: " + raw)
		}
		f.LeadScore = score
	}
	if raw := strings.TrimSpace(c.QueryParam("assigned_to")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return f, domain.NewValidationError("assigned_to must be a user id")
		}
		f.AssignedTo = id
	}

	var err error
	if f.DateFrom, err = queryDate(c, "date_from", false); err != nil {
		return f, err
	}
	if f.DateTo, err = queryDate(c, "date_to", false); err != nil {
		return f, err
	}
	if f.FollowUpDueBy, err = queryDate(c, "follow_up_due", true); err != nil {
		return f, err
	}
	return f, f.Validate()
}

type idResponse struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
}

func deleted(c echo.Context, id int, what string) error {
	return c.JSON(http.StatusOK, idResponse{ID: id, Message: what + " deleted"})
}
