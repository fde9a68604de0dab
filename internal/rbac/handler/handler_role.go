package handler

import (
	"net/http"

	"scopedrbac/internal/rbac/model"

	"github.com/labstack/echo/v4"
)

type roleResp struct {
	*model.Role
	ResolvedPermissions []string `json:"resolved_permissions"`
}

func (h *Handler) ListRoles(c echo.Context) error {
	roles, err := h.Roles.ListRoles(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	if roles == nil {
		roles = []*model.Role{}
	}
	return c.JSON(http.StatusOK, roles)
}

// GetRole returns the role with its full permission closure.
func (h *Handler) GetRole(c echo.Context) error {
	ctx := c.Request().Context()
	role, err := h.Roles.GetRole(ctx, c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	resolved, err := h.Roles.ResolvedPermissions(ctx, role.Name)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, roleResp{Role: role, ResolvedPermissions: resolved})
}

func (h *Handler) CreateRole(c echo.Context) error {
	var r model.Role
	if err := c.Bind(&r); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	switch r.Type {
	case "":
		r.Type = model.RoleTypeCustom
	case model.RoleTypeSystem:
		return h.badRequest(c, "System roles are seeded and cannot be created")
	}
	created, err := h.Roles.CreateRole(c.Request().Context(), &r, CallerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateRole(c echo.Context) error {
	var r model.Role
	if err := c.Bind(&r); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	r.Name = c.Param("name")
	if r.Type == "" {
		r.Type = model.RoleTypeCustom
	}
	updated, err := h.Roles.UpdateRole(c.Request().Context(), &r, CallerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteRole(c echo.Context) error {
	if err := h.Roles.DeleteRole(c.Request().Context(), c.Param("name"), CallerID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

// RecomputeRoleStats rebuilds the role counters from the assignment store.
func (h *Handler) RecomputeRoleStats(c echo.Context) error {
	stats, err := h.Roles.RecomputeStats(c.Request().Context(), c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
