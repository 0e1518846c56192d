package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/analytics"
	"github.com/jordanlanch/leaddesk/pkg/categories"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// LeadHandler handles lead endpoints
type LeadHandler struct {
	leads      *leads.Service
	assigner   *leadassignment.Service
	categories *categories.Service
	activities *activity.Service
	analytics  *analytics.Service
	log        logger.Logger
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leadService *leads.Service, assigner *leadassignment.Service, cats *categories.Service, acts *activity.Service, stats *analytics.Service, log logger.Logger) *LeadHandler {
	return &LeadHandler{
		leads:      leadService,
		assigner:   assigner,
		categories: cats,
		activities: acts,
		analytics:  stats,
		log:        log,
	}
}

type createLeadRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Source       string `json:"source"`
	LeadScore    string `json:"lead_score"`
	Status       string `json:"status"`
	AssignedTo   *int   `json:"assigned_to,omitempty"`
	ReferralCode string `json:"referral_code"`
	FollowUpDate string `json:"follow_up_date"`
	Notes        string `json:"notes"`
}

// updateLeadRequest is a partial update. An empty follow_up_date clears it.
type updateLeadRequest struct {
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Source       *string `json:"source,omitempty"`
	LeadScore    *string `json:"lead_score,omitempty"`
	Status       *string `json:"status,omitempty"`
	ReferralCode *string `json:"referral_code,omitempty"`
	FollowUpDate *string `json:"follow_up_date,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

type assignRequest struct {
	UserID *int   `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

type leadCategoriesRequest struct {
	CategoryIDs []int `json:"category_ids"`
}

func parseScore(raw string) (models.LeadScore, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	score, ok := models.ParseLeadScore(raw)
	if !ok {
		return "", domain.NewValidationError("lead_score must be one of HOT, WARM, COLD")
	}
	return score, nil
}

func parseFollowUp(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, domain.NewValidationError("follow_up_date must be a date in YYYY-MM-DD format")
	}
	return &d, nil
}

// List godoc
// @Summary List leads
// @Description Paginated, filterable lead list. Storage failures return an empty degraded page.
// @Tags Leads
// @Produce json
// @Param search query string false "Name, email or phone fragment"
// @Param status query string false "active, converted, lost, follow_up"
// @Param lead_score query string false "HOT, WARM, COLD"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} models.LeadListResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/admin/leads [get]
func (h *LeadHandler) List(c echo.Context) error {
	f, err := leadFilter(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := h.leads.List(ctx, f)
	if isStorageError(err) {
		h.log.Error("lead list degraded", "error", err)
		n := f.Normalize()
		return c.JSON(http.StatusOK, models.LeadListResponse{
			Data:       []models.Lead{},
			Pagination: models.NewPagination(n.Page, n.Limit, 0),
			Degraded:   true,
		})
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Get returns one lead.
func (h *LeadHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	lead, err := h.leads.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, lead)
}

// Create adds a lead.
func (h *LeadHandler) Create(c echo.Context) error {
	var req createLeadRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	score, err := parseScore(req.LeadScore)
	if err != nil {
		return fail(c, err)
	}
	followUp, err := parseFollowUp(req.FollowUpDate)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	lead, err := h.leads.Create(ctx, leads.CreateInput{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Source:       req.Source,
		LeadScore:    score,
		Status:       models.LeadStatus(strings.TrimSpace(req.Status)),
		AssignedTo:   req.AssignedTo,
		ReferralCode: req.ReferralCode,
		FollowUpDate: followUp,
		Notes:        req.Notes,
	}, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	h.analytics.Invalidate(ctx)
	return c.JSON(http.StatusCreated, lead)
}

// Update applies a partial update.
func (h *LeadHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req updateLeadRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	in := leads.UpdateInput{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Source:       req.Source,
		ReferralCode: req.ReferralCode,
		Notes:        req.Notes,
	}
	if req.LeadScore != nil {
		score, ok := models.ParseLeadScore(*req.LeadScore)
		if !ok {
			return fail(c, domain.NewValidationError("lead_score must be one of HOT, WARM, COLD"))
		}
		in.LeadScore = &score
	}
	if req.Status != nil {
		status := models.LeadStatus(strings.TrimSpace(*req.Status))
		in.Status = &status
	}
	if req.FollowUpDate != nil {
		d, err := parseFollowUp(*req.FollowUpDate)
		if err != nil {
			return fail(c, err)
		}
		in.FollowUpDate = d
		in.ClearFollowUp = d == nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	lead, err := h.leads.Update(ctx, id, in, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	h.analytics.Invalidate(ctx)
	return c.JSON(http.StatusOK, lead)
}

// Delete removes a lead with its activities and category links.
func (h *LeadHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.leads.Delete(ctx, id); err != nil {
		return fail(c, err)
	}
	h.analytics.Invalidate(ctx)
	return deleted(c, id, "Lead")
}

// Assign sets or clears the assignee. A null user_id unassigns.
func (h *LeadHandler) Assign(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if req.UserID == nil || *req.UserID <= 0 {
		lead, err := h.leads.Assign(ctx, id, nil, currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		h.analytics.Invalidate(ctx)
		return c.JSON(http.StatusOK, lead)
	}

	resp, err := h.assigner.AssignLead(ctx, leadassignment.AssignLeadRequest{
		LeadID: id,
		UserID: *req.UserID,
		Reason: req.Reason,
	}, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	h.analytics.Invalidate(ctx)
	return c.JSON(http.StatusOK, resp)
}

// AutoAssign hands the lead to the active member with the fewest open leads.
func (h *LeadHandler) AutoAssign(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := h.assigner.AutoAssignLead(ctx, id, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	h.analytics.Invalidate(ctx)
	return c.JSON(http.StatusOK, resp)
}

// AssignmentHistory lists the assignment activities of a lead.
func (h *LeadHandler) AssignmentHistory(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	history, err := h.assigner.GetLeadAssignmentHistory(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

// Categories lists the categories of a lead.
func (h *LeadHandler) Categories(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	cats, err := h.categories.ForLead(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cats)
}

// SetCategories replaces the category set of a lead.
func (h *LeadHandler) SetCategories(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req leadCategoriesRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	cats, err := h.categories.SetLeadCategories(ctx, id, req.CategoryIDs, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	h.analytics.Invalidate(ctx)
	return c.JSON(http.StatusOK, cats)
}

// Activities returns the timeline of a lead.
func (h *LeadHandler) Activities(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.leads.Get(ctx, id); err != nil {
		return fail(c, err)
	}
	list, err := h.activities.List(ctx, activity.Filter{LeadID: id, Limit: queryInt(c, "limit", 0)})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}
