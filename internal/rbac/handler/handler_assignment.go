package handler

import (
	"context"
	"net/http"

	"scopedrbac/internal/rbac/adapter"
	"scopedrbac/internal/rbac/model"

	"github.com/labstack/echo/v4"
)

// AssignRole handles POST /assignments
func (h *Handler) AssignRole(c echo.Context) error {
	var req model.AssignRoleReq
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, err)
	}

	a, err := h.Assignments.Assign(c.Request().Context(), req.UserID, req.Role, CallerID(c), req.Options)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

type transitionFunc func(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error)

func (h *Handler) transition(c echo.Context, fn transitionFunc) error {
	var req model.TransitionReq
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, err)
	}

	a, err := fn(c.Request().Context(), req.UserID, req.Role, CallerID(c), req.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ApproveAssignment(c echo.Context) error {
	return h.transition(c, h.Assignments.Approve)
}

func (h *Handler) RejectAssignment(c echo.Context) error {
	return h.transition(c, h.Assignments.Reject)
}

func (h *Handler) SuspendAssignment(c echo.Context) error {
	return h.transition(c, h.Assignments.Suspend)
}

func (h *Handler) ReactivateAssignment(c echo.Context) error {
	return h.transition(c, h.Assignments.Reactivate)
}

func (h *Handler) RevokeAssignment(c echo.Context) error {
	return h.transition(c, h.Assignments.Revoke)
}

func (h *Handler) GetAssignment(c echo.Context) error {
	a, err := h.Assignments.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListUserAssignments returns every assignment of the user in any state.
func (h *Handler) ListUserAssignments(c echo.Context) error {
	list, err := h.Assignments.ListForUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if list == nil {
		list = []*model.Assignment{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) AddOverride(c echo.Context) error {
	var req model.OverrideReq
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, err)
	}
	a, err := h.Assignments.AddOverridePermission(c.Request().Context(), c.Param("id"), req.Permission, CallerID(c), req.Reason, req.ExpiresAt)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RemoveOverride(c echo.Context) error {
	a, err := h.Assignments.RemoveOverridePermission(c.Request().Context(), c.Param("id"), c.Param("permission"), CallerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AddRestriction(c echo.Context) error {
	var req model.OverrideReq
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	if err := req.Validate(); err != nil {
		return h.fail(c, err)
	}
	a, err := h.Assignments.AddRestriction(c.Request().Context(), c.Param("id"), req.Permission, CallerID(c), req.Reason, req.ExpiresAt)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RemoveRestriction(c echo.Context) error {
	a, err := h.Assignments.RemoveRestriction(c.Request().Context(), c.Param("id"), c.Param("permission"), CallerID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// SweepExpired runs the expiry sweep immediately.
func (h *Handler) SweepExpired(c echo.Context) error {
	n, err := h.Sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"expired": n})
}

type bulkRelationsReq struct {
	Relations []*adapter.RelationRequest `json:"relations"`
}

// PostAssignmentsBatch assigns a batch of relation-style items. Items fail
// independently and are reported in the result.
func (h *Handler) PostAssignmentsBatch(c echo.Context) error {
	var req bulkRelationsReq
	if err := c.Bind(&req); err != nil {
		return h.badRequest(c, "Invalid body")
	}
	if len(req.Relations) == 0 {
		return h.badRequest(c, "relations is required")
	}
	res, err := h.Relations.BulkCreateRelations(c.Request().Context(), CallerID(c), req.Relations)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
