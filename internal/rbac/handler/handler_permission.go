package handler

import (
	"net/http"
	"strconv"

	"scopedrbac/internal/rbac/catalog"
	"scopedrbac/internal/rbac/model"

	"github.com/labstack/echo/v4"
)

// ListPermissions handles GET /permissions?module=&security_level=&include_inactive=
func (h *Handler) ListPermissions(c echo.Context) error {
	ctx := c.Request().Context()

	var opts []catalog.ReadOption
	if v := c.QueryParam("include_inactive"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return h.badRequest(c, "include_inactive must be a boolean")
		}
		if include {
			opts = append(opts, catalog.IncludeInactive())
		}
	}

	var (
		perms []*model.Permission
		err   error
	)
	switch {
	case c.QueryParam("module") != "":
		perms, err = h.Catalog.ListByModule(ctx, c.QueryParam("module"), opts...)
	case c.QueryParam("security_level") != "":
		level, perr := model.ParseSecurityLevel(c.QueryParam("security_level"))
		if perr != nil {
			return h.fail(c, perr)
		}
		perms, err = h.Catalog.ListBySecurityLevel(ctx, level, opts...)
	default:
		perms, err = h.Catalog.List(ctx, opts...)
	}
	if err != nil {
		return h.fail(c, err)
	}
	if perms == nil {
		perms = []*model.Permission{}
	}
	return c.JSON(http.StatusOK, perms)
}

func (h *Handler) GetPermission(c echo.Context) error {
	p, err := h.Catalog.Lookup(c.Request().Context(), c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) RegisterPermission(c echo.Context) error {
	var p model.Permission
	if err := c.Bind(&p); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	created, err := h.Catalog.Register(c.Request().Context(), &p, CallerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	h.Resolver.Invalidate()
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdatePermission(c echo.Context) error {
	var p model.Permission
	if err := c.Bind(&p); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	p.Name = c.Param("name")
	updated, err := h.Catalog.Update(c.Request().Context(), &p)
	if err != nil {
		return h.fail(c, err)
	}
	// Role closures cached elsewhere may depend on the old implications.
	h.Resolver.Invalidate()
	return c.JSON(http.StatusOK, updated)
}

// DisablePermission soft-disables; permissions are never hard-deleted.
func (h *Handler) DisablePermission(c echo.Context) error {
	if err := h.Catalog.Disable(c.Request().Context(), c.Param("name")); err != nil {
		return h.fail(c, err)
	}
	h.Resolver.Invalidate()
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}
