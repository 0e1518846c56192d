package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	apierrors "github.com/jordanlanch/leaddesk/pkg/api/errors"
	apimw "github.com/jordanlanch/leaddesk/pkg/api/middleware"
	"github.com/jordanlanch/leaddesk/pkg/auth"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/team"
	"github.com/labstack/echo/v4"
)

// AuthHandler handles login, logout and the current user.
type AuthHandler struct {
	team            *team.Service
	blacklist       *auth.TokenBlacklist
	jwtSecret       string
	expirationHours int
	metrics         *metrics.Metrics
	validator       *validator.Validate
	log             logger.Logger
}

// NewAuthHandler creates a new auth handler. blacklist and m may be nil.
func NewAuthHandler(users *team.Service, blacklist *auth.TokenBlacklist, jwtSecret string, expirationHours int, m *metrics.Metrics, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		team:            users,
		blacklist:       blacklist,
		jwtSecret:       jwtSecret,
		expirationHours: expirationHours,
		metrics:         m,
		validator:       validator.New(),
		log:             log,
	}
}

// Login godoc
// @Summary Log in
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, "email and password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.team.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if domain.IsUnauthorized(err) {
			h.recordLogin(false)
			h.log.Warn("failed login", "email", req.Email, "ip", c.RealIP())
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "invalid_credentials",
				Message: "Invalid email or password",
			})
		}
		return fail(c, err)
	}

	token, expiresAt, err := auth.GenerateJWT(user.ID, user.Email, string(user.Role), h.jwtSecret, h.expirationHours)
	if err != nil {
		return apierrors.InternalError(c, err)
	}
	h.recordLogin(true)

	return c.JSON(http.StatusOK, models.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

func (h *AuthHandler) recordLogin(ok bool) {
	if h.metrics != nil {
		h.metrics.RecordLoginAttempt(ok)
	}
}

// Logout revokes the bearer token until it would have expired.
func (h *AuthHandler) Logout(c echo.Context) error {
	if h.blacklist != nil {
		ctx, cancel := requestContext(c)
		defer cancel()

		if ttl := auth.RemainingLifetime(apimw.Claims(c)); ttl > 0 {
			if err := h.blacklist.Add(ctx, apimw.Token(c), ttl); err != nil {
				return apierrors.InternalError(c, err)
			}
		}
	}
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Logged out"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.team.Get(ctx, currentUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}
