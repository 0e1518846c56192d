package middleware

import (
	"net/http"

	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// RequireAdmin rejects users without the admin role. It reads the role set
// by the JWT middleware and must be applied after it.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := c.Get("user_id").(int); !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "Authentication required",
				})
			}

			role, _ := c.Get("user_role").(string)
			if models.Role(role) != models.RoleAdmin {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"error":   "insufficient_permissions",
					"message": "Admin access required",
					"details": map[string]interface{}{
						"required_role": string(models.RoleAdmin),
						"current_role":  role,
					},
				})
			}
			return next(c)
		}
	}
}
