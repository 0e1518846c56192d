// Package middleware authenticates API requests.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/jordanlanch/leaddesk/pkg/api/errors"
	"github.com/jordanlanch/leaddesk/pkg/auth"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// Context keys set on authenticated requests.
const (
	KeyUserID    = "user_id"
	KeyUserEmail = "user_email"
	KeyUserRole  = "user_role"
	KeyToken     = "token"
	KeyClaims    = "claims"
	KeySession   = "session"
)

// Session is the authenticated caller of a request.
type Session struct {
	UserID int
	Email  string
	Role   models.Role
	Token  string
}

// IsAdmin reports whether the caller holds the admin role.
func (s Session) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}

// UserLookup loads the user behind a token.
type UserLookup interface {
	Get(ctx context.Context, id int) (*models.User, error)
}

// JWTMiddleware creates a JWT authentication middleware
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return JWTMiddlewareWithBlacklist(secret, nil, nil)
}

// JWTMiddlewareWithBlacklist validates the bearer token, rejects revoked
// tokens and, when users is set, rejects deleted or deactivated accounts.
// The role stored on the request comes from the database when available so a
// demoted admin loses access before their token expires.
func JWTMiddlewareWithBlacklist(secret string, blacklist *auth.TokenBlacklist, users UserLookup) echo.MiddlewareFunc {
	return authenticate(secret, blacklist, users, false)
}

// JWTFromQueryOrHeader also accepts the token as a ?token= query parameter,
// for download links where headers cannot be set.
func JWTFromQueryOrHeader(secret string, blacklist *auth.TokenBlacklist, users UserLookup) echo.MiddlewareFunc {
	return authenticate(secret, blacklist, users, true)
}

func authenticate(secret string, blacklist *auth.TokenBlacklist, users UserLookup, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, failure := bearerToken(c, allowQuery)
			if failure != nil {
				return c.JSON(http.StatusUnauthorized, failure)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			claims, err := auth.ValidateJWTWithBlacklist(ctx, token, secret, blacklist)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: err.Error(),
				})
			}

			role := claims.Role
			if users != nil {
				user, err := users.Get(ctx, claims.UserID)
				if domain.IsNotFound(err) {
					return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
						Error:   "user_not_found",
						Message: "User account not found",
					})
				}
				if err != nil {
					return apierrors.InternalError(c, err)
				}
				if !user.IsActive() {
					return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
						Error:   "account_disabled",
						Message: "This account has been deactivated",
					})
				}
				role = string(user.Role)
			}

			c.Set(KeyToken, token)
			c.Set(KeyClaims, claims)
			c.Set(KeyUserID, claims.UserID)
			c.Set(KeyUserEmail, claims.Email)
			c.Set(KeyUserRole, role)
			c.Set(KeySession, Session{
				UserID: claims.UserID,
				Email:  claims.Email,
				Role:   models.Role(role),
				Token:  token,
			})

			return next(c)
		}
	}
}

func bearerToken(c echo.Context, allowQuery bool) (string, *models.ErrorResponse) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", &models.ErrorResponse{
				Error:   "invalid_token_format",
				Message: "Authorization header must be 'Bearer {token}'",
			}
		}
		return parts[1], nil
	}
	if allowQuery {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", &models.ErrorResponse{
			Error:   "missing_token",
			Message: "Authorization header or token query parameter is required",
		}
	}
	return "", &models.ErrorResponse{
		Error:   "missing_token",
		Message: "Authorization header is required",
	}
}

// CurrentSession returns the session of an authenticated request. ok is false
// when the JWT middleware did not run.
func CurrentSession(c echo.Context) (Session, bool) {
	s, ok := c.Get(KeySession).(Session)
	return s, ok
}

// UserID returns the authenticated user id, or 0.
func UserID(c echo.Context) int {
	id, _ := c.Get(KeyUserID).(int)
	return id
}

// Role returns the authenticated user's role.
func Role(c echo.Context) models.Role {
	role, _ := c.Get(KeyUserRole).(string)
	return models.Role(role)
}

// Token returns the raw bearer token of the request.
func Token(c echo.Context) string {
	token, _ := c.Get(KeyToken).(string)
	return token
}

// Claims returns the validated token claims.
func Claims(c echo.Context) *auth.Claims {
	claims, _ := c.Get(KeyClaims).(*auth.Claims)
	return claims
}
