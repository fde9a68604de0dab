package handler

import (
	"net/http"

	"scopedrbac/internal/rbac/policy"

	"github.com/labstack/echo/v4"
)

// RBACMiddleware authorizes routes listed in the embedded API table.
type RBACMiddleware struct {
	policyEngine *policy.Engine
}

func NewRBACMiddleware(engine *policy.Engine) *RBACMiddleware {
	return &RBACMiddleware{policyEngine: engine}
}

// Middleware returns the Echo middleware function
func (m *RBACMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			config, exists := m.policyEngine.GetAPIConfig(c.Request().Method, c.Path())
			if !exists {
				// No RBAC config for this path, pass through
				return next(c)
			}

			callerID := c.Request().Header.Get("x-user-id")
			if callerID == "" {
				return c.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "x-user-id header is required"))
			}
			c.Set(callerKey, callerID)

			allowed := m.policyEngine.CheckOperationPermission(c.Request().Context(), policy.OperationRequest{
				CallerID:  callerID,
				SubjectID: c.Param("id"),
				SourceIP:  c.RealIP(),
				Config:    config,
			})
			if !allowed {
				return c.JSON(http.StatusForbidden, errorResponse("forbidden", "You do not have permission to perform this action"))
			}
			return next(c)
		}
	}
}
