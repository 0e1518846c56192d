package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/analytics"
	"github.com/jordanlanch/leaddesk/pkg/categories"
	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestPathID(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/admin/leads/7")
	c.SetParamNames("id")
	c.SetParamValues("7")
	id, err := pathID(c, "id")
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		c.SetParamValues(bad)
		_, err := pathID(c, "id")
		assert.Error(t, err, bad)
	}
}

func TestLeadFilter(t *testing.T) {
	c, _ := newContext(http.MethodGet, "/api/v1/admin/leads?search=+acme+&lead_score=hot&assigned_to=4&date_from=2026-10-01&date_to=2026-10-07&follow_up_due=2026-10-10&page=2&limit=25")
	f, err := leadFilter(c)
	require.NoError(t, err)
	assert.Equal(t, "acme", f.Search)
	assert.Equal(t, models.ScoreHot, f.LeadScore)
	assert.Equal(t, 4, f.AssignedTo)
	assert.Equal(t, 2, f.Page)
	assert.Equal(t, 25, f.Limit)
	require.NotNil(t, f.DateFrom)
	require.NotNil(t, f.DateTo)
	assert.Equal(t, time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC), *f.DateTo)
	require.NotNil(t, f.FollowUpDueBy)
	assert.Equal(t, time.Date(2026, 10, 10, 23, 59, 59, 999999999, time.UTC), *f.FollowUpDueBy)

	for _, target := range []string{
		"/api/v1/admin/leads?lead_score=lukewarm",
		"/api/v1/admin/leads?assigned_to=me",
		"/api/v1/admin/leads?date_from=10/01/2026",
	} {
		c, _ := newContext(http.MethodGet, target)
		_, err := leadFilter(c)
		assert.Error(t, err, target)
	}
}

func TestReadsDegradeWhenStorageFails(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, db.Close())

	t.Run("lead list", func(t *testing.T) {
		h := NewLeadHandler(leads.NewService(db), leadassignment.NewService(db), categories.NewService(db),
			activity.NewService(db), analytics.NewService(db, nil, 0, logger.Nop()), logger.Nop())
		c, rec := newContext(http.MethodGet, "/api/v1/admin/leads?page=3")

		require.NoError(t, h.List(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp models.LeadListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Degraded)
		assert.Empty(t, resp.Data)
		assert.Equal(t, 3, resp.Pagination.Page)
	})

	t.Run("lead list still rejects bad filters", func(t *testing.T) {
		h := NewLeadHandler(leads.NewService(db), nil, nil, nil, nil, logger.Nop())
		c, rec := newContext(http.MethodGet, "/api/v1/admin/leads?lead_score=lukewarm")

		require.NoError(t, h.List(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("activity report", func(t *testing.T) {
		h := NewActivityHandler(activity.NewService(db), logger.Nop())
		c, rec := newContext(http.MethodGet, "/api/v1/admin/activities?activity_type=assigned")

		require.NoError(t, h.List(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp activityReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Degraded)
		assert.Empty(t, resp.Activities)
		assert.Equal(t, 0, resp.Count)
	})
}

func TestActivityReport(t *testing.T) {
	db := dbtest.Open(t)
	svc := activity.NewService(db)
	h := NewActivityHandler(svc, logger.Nop())

	leadSvc := leads.NewService(db)
	c, _ := newContext(http.MethodPost, "/")
	lead, err := leadSvc.Create(c.Request().Context(), leads.CreateInput{Name: "Acme Gym", Email: "gym@acme.test"}, 0)
	require.NoError(t, err)

	c, rec := newContext(http.MethodGet, "/api/v1/admin/activities")
	require.NoError(t, h.List(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp activityReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Degraded)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, lead.ID, resp.Activities[0].LeadID)
	assert.Equal(t, 1, resp.ByType[activity.TypeCreated])

	c, rec = newContext(http.MethodGet, "/api/v1/admin/activities?date_to=2026-13-01")
	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
