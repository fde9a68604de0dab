package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"scopedrbac/internal/rbac/adapter"
	"scopedrbac/internal/rbac/catalog"
	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/util"

	"github.com/labstack/echo/v4"
)

type PermissionCatalog interface {
	Register(ctx context.Context, p *model.Permission, actor string) (*model.Permission, error)
	Update(ctx context.Context, p *model.Permission) (*model.Permission, error)
	Disable(ctx context.Context, name string) error
	Lookup(ctx context.Context, name string) (*model.Permission, error)
	List(ctx context.Context, opts ...catalog.ReadOption) ([]*model.Permission, error)
	ListByModule(ctx context.Context, module string, opts ...catalog.ReadOption) ([]*model.Permission, error)
	ListBySecurityLevel(ctx context.Context, level model.SecurityLevel, opts ...catalog.ReadOption) ([]*model.Permission, error)
}

type RoleGraph interface {
	CreateRole(ctx context.Context, r *model.Role, actor string) (*model.Role, error)
	UpdateRole(ctx context.Context, r *model.Role, actor string) (*model.Role, error)
	DeleteRole(ctx context.Context, name, actor string) error
	GetRole(ctx context.Context, name string) (*model.Role, error)
	ListRoles(ctx context.Context) ([]*model.Role, error)
	ResolvedPermissions(ctx context.Context, roleName string) ([]string, error)
	RecomputeStats(ctx context.Context, roleName string) (model.RoleStats, error)
}

type AssignmentService interface {
	Assign(ctx context.Context, userID, roleName, assignedBy string, opts model.AssignOptions) (*model.Assignment, error)
	Approve(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error)
	Reject(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error)
	Suspend(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error)
	Reactivate(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error)
	Revoke(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error)
	Get(ctx context.Context, id string) (*model.Assignment, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Assignment, error)
	AddOverridePermission(ctx context.Context, assignmentID, permission, grantedBy, reason string, expiresAt *time.Time) (*model.Assignment, error)
	AddRestriction(ctx context.Context, assignmentID, permission, restrictedBy, reason string, expiresAt *time.Time) (*model.Assignment, error)
	RemoveOverridePermission(ctx context.Context, assignmentID, permission, actor string) (*model.Assignment, error)
	RemoveRestriction(ctx context.Context, assignmentID, permission, actor string) (*model.Assignment, error)
}

type Resolver interface {
	Check(ctx context.Context, userID, name string, cc model.CheckContext, tags ...model.ResourceTag) model.Decision
	HasPermission(ctx context.Context, userID, name string, cc model.CheckContext) bool
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)
	Explain(ctx context.Context, userID, name string) (*model.Explanation, error)
	ResourceAccessible(ctx context.Context, userID string, tags []model.ResourceTag) bool
	Invalidate()
}

type Sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// Pinger reports datastore health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Catalog     PermissionCatalog
	Roles       RoleGraph
	Assignments AssignmentService
	Resolver    Resolver
	Sweeper     Sweeper
	Relations   adapter.RelationAdapter
	Store       Pinger
	Logger      *slog.Logger
}

type Handler struct {
	Catalog     PermissionCatalog
	Roles       RoleGraph
	Assignments AssignmentService
	Resolver    Resolver
	Sweeper     Sweeper
	Relations   adapter.RelationAdapter
	Store       Pinger
	logger      *slog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		Catalog:     d.Catalog,
		Roles:       d.Roles,
		Assignments: d.Assignments,
		Resolver:    d.Resolver,
		Sweeper:     d.Sweeper,
		Relations:   d.Relations,
		Store:       d.Store,
		logger:      util.OrDefault(d.Logger),
	}
}

// fail writes the mapped error. Dependency and internal errors are logged.
func (h *Handler) fail(c echo.Context, err error) error {
	status, body := httpError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request().Method, "path", c.Path(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID), "error", err)
	}
	body.Error.RequestID = c.Response().Header().Get(echo.HeaderXRequestID)
	return c.JSON(status, body)
}

func (h *Handler) badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse("bad_request", msg))
}

func HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready pings the datastore.
func (h *Handler) Ready(c echo.Context) error {
	if h.Store != nil {
		if err := h.Store.Ping(c.Request().Context()); err != nil {
			return h.fail(c, model.DependencyError("ping", err))
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
