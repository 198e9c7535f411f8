package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireRole returns a middleware that enforces that the authenticated user
// has one of the specified roles, as stored in the JWT's "role" claim by
// JWTAuth. Operator-only surfaces (sync triggers, settings, overrides) are
// gated with RequireRole("OPERATOR"); checkout endpoints accept any
// authenticated role. Requests with a missing or disallowed role are
// aborted with 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	// Build a set of allowed roles for constant-time lookups.
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			v := c.Get("role")
			role, ok := v.(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
