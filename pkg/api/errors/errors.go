// Package errors renders handler failures as JSON without leaking internals.
package errors

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

var log = logger.Nop()

// SetLogger replaces the logger used for internal failures.
func SetLogger(l logger.Logger) {
	if l != nil {
		log = l
	}
}

// ValidationError returns 400 with a message safe to show to the admin.
func ValidationError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}

// BadRequest returns 400 for malformed input such as undecodable JSON.
func BadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// DatabaseError returns a generic database error without exposing internal details
func DatabaseError(c echo.Context, err error) error {
	log.Error("database error", "path", c.Request().URL.Path, "error", err)
	capture(c, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "database_error",
		Message: "A database error occurred. Please try again later.",
	})
}

// InternalError logs err, reports it to Sentry and returns a generic 500.
func InternalError(c echo.Context, err error) error {
	log.Error("internal error", "path", c.Request().URL.Path, "method", c.Request().Method, "error", err)
	capture(c, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

func capture(c echo.Context, err error) {
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context, message string) error {
	if message == "" {
		message = "You are not authorized to access this resource."
	}
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}

// ForbiddenError returns a generic forbidden error
func ForbiddenError(c echo.Context) error {
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: "You do not have permission to access this resource.",
	})
}

// NotFoundError returns 404 naming the missing resource.
func NotFoundError(c echo.Context, message string) error {
	if message == "" {
		message = "The requested resource was not found."
	}
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: message,
	})
}

// ConflictError returns a generic conflict error
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message,
	})
}

// FromDomain maps a service error to its HTTP response. Anything that is not
// a domain error is treated as internal.
func FromDomain(c echo.Context, err error) error {
	switch domain.GetErrorCode(err) {
	case domain.ErrCodeValidation:
		return ValidationError(c, domain.GetErrorMessage(err))
	case domain.ErrCodeBadRequest:
		return BadRequest(c, domain.GetErrorMessage(err))
	case domain.ErrCodeNotFound:
		return NotFoundError(c, domain.GetErrorMessage(err))
	case domain.ErrCodeConflict:
		return ConflictError(c, domain.GetErrorMessage(err))
	case domain.ErrCodeUnauthorized:
		return UnauthorizedError(c, domain.GetErrorMessage(err))
	case domain.ErrCodeForbidden:
		return ForbiddenError(c)
	}
	return InternalError(c, err)
}
