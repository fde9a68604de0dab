package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/util"
)

type PermissionRegistry interface {
	Lookup(ctx context.Context, name string) (*model.Permission, error)
	Register(ctx context.Context, p *model.Permission, actor string) (*model.Permission, error)
}

type RoleRegistry interface {
	GetRole(ctx context.Context, name string) (*model.Role, error)
	CreateRole(ctx context.Context, r *model.Role, actor string) (*model.Role, error)
}

type Assigner interface {
	Assign(ctx context.Context, userID, roleName, assignedBy string, opts model.AssignOptions) (*model.Assignment, error)
}

// SeedResult counts the definitions created by one Seed run.
type SeedResult struct {
	Permissions int
	Roles       int
}

// Bootstrapper installs the embedded permissions and system roles.
// Existing definitions are left untouched, so Seed can run on every start.
type Bootstrapper struct {
	perms    PermissionRegistry
	roles    RoleRegistry
	assigner Assigner
	loader   *Loader
	logger   *slog.Logger
}

func NewBootstrapper(perms PermissionRegistry, roles RoleRegistry, assigner Assigner, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{
		perms:    perms,
		roles:    roles,
		assigner: assigner,
		loader:   NewLoader(),
		logger:   util.OrDefault(logger),
	}
}

func (b *Bootstrapper) Seed(ctx context.Context) (SeedResult, error) {
	var res SeedResult

	perms, err := b.loader.LoadPermissions()
	if err != nil {
		return res, err
	}
	for _, p := range perms {
		_, err := b.perms.Lookup(ctx, p.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return res, err
		}
		if _, err := b.perms.Register(ctx, p, model.SystemActor); err != nil {
			return res, fmt.Errorf("seed permission %s: %w", p.Name, err)
		}
		res.Permissions++
	}

	roles, err := b.loader.LoadRoles(perms)
	if err != nil {
		return res, err
	}
	// Parents have higher level numbers and must exist first.
	sort.SliceStable(roles, func(i, j int) bool { return roles[i].Level > roles[j].Level })
	for _, r := range roles {
		_, err := b.roles.GetRole(ctx, r.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return res, err
		}
		if _, err := b.roles.CreateRole(ctx, r, model.SystemActor); err != nil {
			return res, fmt.Errorf("seed role %s: %w", r.Name, err)
		}
		res.Roles++
	}

	b.logger.Info("rbac seed applied", "permissions_created", res.Permissions, "roles_created", res.Roles)
	return res, nil
}

// EnsureSuperAdmin gives userID the super_admin role unless they already hold it.
func (b *Bootstrapper) EnsureSuperAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	_, err := b.assigner.Assign(ctx, userID, model.RoleSuperAdmin, model.SystemActor, model.AssignOptions{
		Reason:    "bootstrap",
		IsPrimary: true,
	})
	if errors.Is(err, model.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap super admin: %w", err)
	}
	b.logger.Info("bootstrap super admin assigned", "user_id", userID)
	return nil
}
