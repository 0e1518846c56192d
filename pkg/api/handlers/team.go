package handlers

import (
	"net/http"
	"strings"

	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/email"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/team"
	"github.com/labstack/echo/v4"
)

// TeamHandler manages team members.
type TeamHandler struct {
	team     *team.Service
	email    *email.Service
	loginURL string
	log      logger.Logger
}

// NewTeamHandler creates a new team handler. mailer may be nil.
func NewTeamHandler(svc *team.Service, mailer *email.Service, loginURL string, log logger.Logger) *TeamHandler {
	return &TeamHandler{team: svc, email: mailer, loginURL: loginURL, log: log}
}

type statusRequest struct {
	Status models.UserStatus `json:"status"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// List returns team members, optionally filtered by ?status= and ?role=.
func (h *TeamHandler) List(c echo.Context) error {
	f := team.ListFilter{
		Status: models.UserStatus(strings.TrimSpace(c.QueryParam("status"))),
		Role:   models.Role(strings.TrimSpace(c.QueryParam("role"))),
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	users, err := h.team.List(ctx, f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// Get returns one member.
func (h *TeamHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.team.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// Create godoc
// @Summary Add a team member
// @Description Creates the account and emails the member a welcome message.
// @Tags Team
// @Accept json
// @Produce json
// @Param body body team.CreateMemberRequest true "Member"
// @Success 201 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/v1/admin/team [post]
func (h *TeamHandler) Create(c echo.Context) error {
	var req team.CreateMemberRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.team.Create(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	h.log.Info("team member created", "user_id", user.ID, "role", string(user.Role), "actor_id", currentUserID(c))

	if h.email != nil {
		if err := h.email.SendMemberWelcome(ctx, user.Email, user.Name, h.loginURL); err != nil {
			h.log.Warn("welcome email failed", "user_id", user.ID, "error", err)
		}
	}
	return c.JSON(http.StatusCreated, user)
}

// Update applies a partial update.
func (h *TeamHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req team.UpdateMemberRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.team.Update(ctx, id, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// SetStatus enables or soft-disables a member. Members are never hard-deleted.
func (h *TeamHandler) SetStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if id == currentUserID(c) && req.Status == models.UserInactive {
		return fail(c, domain.NewValidationError("you cannot deactivate your own account"))
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.team.SetStatus(ctx, id, req.Status)
	if err != nil {
		return fail(c, err)
	}
	h.log.Info("team member status changed", "user_id", id, "status", string(user.Status), "actor_id", currentUserID(c))
	return c.JSON(http.StatusOK, user)
}

// ChangePassword sets a new password for a member.
func (h *TeamHandler) ChangePassword(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req passwordRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.team.ChangePassword(ctx, id, req.Password); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Password updated"})
}
