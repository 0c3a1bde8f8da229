package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin  = "Admin"
	RoleDoctor = "Doctor"
	RoleStaff  = "Staff"
)

var validRoles = map[string]bool{RoleAdmin: true, RoleDoctor: true, RoleStaff: true}

// IsValidRole reports whether role is one of Admin, Doctor, Staff.
func IsValidRole(role string) bool {
	return validRoles[role]
}

// RequireRole returns middleware that checks the caller holds one of roles.
// Admin satisfies every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			has := RoleFromContext(c.Request().Context())
			if has == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if has == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if has == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
