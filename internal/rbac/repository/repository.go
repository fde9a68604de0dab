package repository

import (
	"context"
	"errors"
	"time"

	"scopedrbac/internal/rbac/model"
)

var ErrDuplicate = errors.New("duplicate record")

// PermissionFilter selects catalog entries. Zero values match everything.
type PermissionFilter struct {
	Module          string
	SecurityLevel   *model.SecurityLevel
	IncludeInactive bool
}

// AssignmentFilter selects assignments. Zero values match everything.
type AssignmentFilter struct {
	UserID     string
	Role       string
	ActiveOnly bool
	Statuses   []model.ApprovalStatus
	// LapsedAt selects active assignments whose validity or delegation ended at or before it.
	LapsedAt *time.Time
}

type PermissionStore interface {
	InsertPermission(ctx context.Context, p *model.Permission) error
	ReplacePermission(ctx context.Context, p *model.Permission) error
	GetPermission(ctx context.Context, name string) (*model.Permission, error)
	ListPermissions(ctx context.Context, filter PermissionFilter) ([]*model.Permission, error)
}

type RoleStore interface {
	InsertRole(ctx context.Context, r *model.Role) error
	ReplaceRole(ctx context.Context, r *model.Role) error
	GetRole(ctx context.Context, name string) (*model.Role, error)
	ListRoles(ctx context.Context) ([]*model.Role, error)
	DeleteRole(ctx context.Context, name string) error
	// IncRoleStats adjusts the role counters by the given deltas.
	IncRoleStats(ctx context.Context, name string, totalDelta, activeDelta int64) error
	SetRoleStats(ctx context.Context, name string, stats model.RoleStats) error
}

type AssignmentStore interface {
	// InsertAssignment returns ErrDuplicate when an active (user, role) pair already exists.
	InsertAssignment(ctx context.Context, a *model.Assignment) error
	ReplaceAssignment(ctx context.Context, a *model.Assignment) error
	GetAssignment(ctx context.Context, id string) (*model.Assignment, error)
	FindAssignments(ctx context.Context, filter AssignmentFilter) ([]*model.Assignment, error)
	CountAssignments(ctx context.Context, filter AssignmentFilter) (int64, error)
	// ClearPrimary demotes every active primary assignment of the user except exceptID.
	ClearPrimary(ctx context.Context, userID, exceptID string, at time.Time) (int64, error)
	// ExpireAssignment deactivates the assignment only if it is still active.
	// It reports whether this call performed the transition.
	ExpireAssignment(ctx context.Context, id string, entry model.HistoryEntry) (bool, error)
	// RecordUsage increments the usage counter of the assignment.
	RecordUsage(ctx context.Context, id string, at time.Time) error
}

// Repository is the datastore the RBAC components are built on.
type Repository interface {
	PermissionStore
	RoleStore
	AssignmentStore
	// WithTx runs fn so that every write made with the context it receives
	// commits together or not at all. Nested calls join the outer transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	EnsureIndexes(ctx context.Context) error
	Ping(ctx context.Context) error
}
