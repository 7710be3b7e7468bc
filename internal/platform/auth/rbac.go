package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles granted by the API. Administrators pass every role check.
const (
	RoleAdmin     = "admin"
	RoleClinician = "clinician"
	RoleRegistrar = "registrar"
	RoleViewer    = "viewer"
)

// ReadRoles may call read-only endpoints.
var ReadRoles = []string{RoleAdmin, RoleClinician, RoleRegistrar, RoleViewer}

// RequireRole returns middleware that lets the request through when the user holds any of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasAnyRole reports whether granted satisfies one of required.
func HasAnyRole(granted []string, required ...string) bool {
	for _, has := range granted {
		if has == RoleAdmin {
			return true
		}
		for _, want := range required {
			if has == want {
				return true
			}
		}
	}
	return false
}
