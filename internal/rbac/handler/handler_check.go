package handler

import (
	"net/http"
	"strings"

	"scopedrbac/internal/rbac/model"

	"github.com/labstack/echo/v4"
)

// canInspect reports whether the caller may query another user's access.
func (h *Handler) canInspect(c echo.Context, userID string) bool {
	caller := CallerID(c)
	if userID == caller {
		return true
	}
	return h.Resolver.HasPermission(c.Request().Context(), caller, model.PermRBACAssignmentRead, model.CheckContext{SourceIP: c.RealIP()})
}

// PostPermissionsCheck handles POST /permissions/check. An empty user_id checks the caller.
func (h *Handler) PostPermissionsCheck(c echo.Context) error {
	var req model.CheckPermissionReq
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, err)
	}
	if req.UserID == "" {
		req.UserID = CallerID(c)
	}
	if !h.canInspect(c, req.UserID) {
		return c.JSON(http.StatusForbidden, errorResponse("forbidden", "Permission denied"))
	}

	cc := req.CheckContext()
	if cc.SourceIP == "" {
		cc.SourceIP = c.RealIP()
	}
	d := h.Resolver.Check(c.Request().Context(), req.UserID, req.Permission, cc, req.Resource...)
	return c.JSON(http.StatusOK, model.CheckPermissionResp{Allowed: d.Allowed, Reason: d.Reason})
}

// PostResourceAccess handles POST /resource-access.
func (h *Handler) PostResourceAccess(c echo.Context) error {
	var req model.ResourceAccessReq
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	if req.UserID == "" {
		req.UserID = CallerID(c)
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, err)
	}
	if !h.canInspect(c, req.UserID) {
		return c.JSON(http.StatusForbidden, errorResponse("forbidden", "Permission denied"))
	}

	ok := h.Resolver.ResourceAccessible(c.Request().Context(), req.UserID, req.Resource)
	return c.JSON(http.StatusOK, model.CheckPermissionResp{Allowed: ok})
}

// GetUserPermissions returns the user's effective permission set.
func (h *Handler) GetUserPermissions(c echo.Context) error {
	perms, err := h.Resolver.EffectivePermissions(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"user_id": c.Param("id"), "permissions": perms})
}

// ExplainPermission handles GET /users/:id/explain?permission=
func (h *Handler) ExplainPermission(c echo.Context) error {
	perm := strings.ToLower(strings.TrimSpace(c.QueryParam("permission")))
	if perm == "" {
		return h.badRequest(c, "permission is required")
	}
	ex, err := h.Resolver.Explain(c.Request().Context(), c.Param("id"), perm)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ex)
}
