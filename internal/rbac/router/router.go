package router

import (
	"scopedrbac/internal/rbac/handler"
	"scopedrbac/internal/rbac/metrics"
	"scopedrbac/internal/rbac/policy"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func RegisterRoutes(e *echo.Echo, h *handler.Handler, policyEngine *policy.Engine, m *metrics.Collector) {
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.PUT, echo.POST, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID, "x-user-id"},
	}))
	if m != nil {
		e.Use(m.Middleware())
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	e.GET("/health", handler.HealthCheck)
	e.GET("/ready", h.Ready)

	v1 := e.Group("/api/v1")
	v1.Use(handler.RequestIDMiddleware)
	v1.Use(handler.NewRBACMiddleware(policyEngine).Middleware())

	// Catalog
	v1.GET("/permissions", h.ListPermissions)
	v1.GET("/permissions/:name", h.GetPermission)
	v1.POST("/permissions", h.RegisterPermission)
	v1.PUT("/permissions/:name", h.UpdatePermission)
	v1.DELETE("/permissions/:name", h.DisablePermission)

	// Role graph
	v1.GET("/roles", h.ListRoles)
	v1.GET("/roles/:name", h.GetRole)
	v1.POST("/roles", h.CreateRole)
	v1.PUT("/roles/:name", h.UpdateRole)
	v1.DELETE("/roles/:name", h.DeleteRole)
	v1.POST("/roles/:name/stats", h.RecomputeRoleStats)

	// Assignments
	v1.POST("/assignments", h.AssignRole)
	v1.POST("/assignments/batch", h.PostAssignmentsBatch)
	v1.POST("/assignments/approve", h.ApproveAssignment)
	v1.POST("/assignments/reject", h.RejectAssignment)
	v1.POST("/assignments/suspend", h.SuspendAssignment)
	v1.POST("/assignments/reactivate", h.ReactivateAssignment)
	v1.POST("/assignments/revoke", h.RevokeAssignment)
	v1.POST("/assignments/sweep", h.SweepExpired)
	v1.GET("/assignments/:id", h.GetAssignment)
	v1.POST("/assignments/:id/overrides", h.AddOverride)
	v1.DELETE("/assignments/:id/overrides/:permission", h.RemoveOverride)
	v1.POST("/assignments/:id/restrictions", h.AddRestriction)
	v1.DELETE("/assignments/:id/restrictions/:permission", h.RemoveRestriction)

	// Decisions
	v1.POST("/permissions/check", h.PostPermissionsCheck)
	v1.POST("/resource-access", h.PostResourceAccess)
	v1.GET("/users/:id/assignments", h.ListUserAssignments)
	v1.GET("/users/:id/permissions", h.GetUserPermissions)
	v1.GET("/users/:id/explain", h.ExplainPermission)
}
