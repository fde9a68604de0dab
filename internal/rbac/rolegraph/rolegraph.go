// Package rolegraph manages roles, their inheritance edges and the permission
// closure each role grants.
package rolegraph

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/repository"
	"scopedrbac/internal/rbac/util"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Store is the datastore slice the graph needs.
type Store interface {
	repository.RoleStore
	CountAssignments(ctx context.Context, filter repository.AssignmentFilter) (int64, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PermissionSource resolves active permission definitions.
type PermissionSource interface {
	Get(ctx context.Context, name string) (*model.Permission, error)
	ImpliedClosure(ctx context.Context, name string) ([]string, error)
}

type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Grant sources reported by Grants.
const (
	SourceRole      = "role"
	SourceInherited = "inherited:"
	SourceImplied   = "implied:"
)

type Graph struct {
	store    Store
	perms    PermissionSource
	roles    *expirable.LRU[string, *model.Role]
	closures *expirable.LRU[string, map[string]string]
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

func New(store Store, perms PermissionSource, opts Options) *Graph {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Graph{
		store:    store,
		perms:    perms,
		roles:    expirable.NewLRU[string, *model.Role](opts.CacheSize, nil, opts.CacheTTL),
		closures: expirable.NewLRU[string, map[string]string](opts.CacheSize, nil, opts.CacheTTL),
		logger:   util.OrDefault(opts.Logger),
		now:      opts.Clock,
	}
}

// GetRole returns a cached role definition. Stats on the cached copy may lag;
// read through the store when exact counters matter.
func (g *Graph) GetRole(ctx context.Context, name string) (*model.Role, error) {
	name = normalize(name)
	if r, ok := g.roles.Get(name); ok {
		return r, nil
	}
	v, err, _ := g.group.Do("role:"+name, func() (interface{}, error) {
		r, err := g.store.GetRole(ctx, name)
		if err != nil {
			return nil, err
		}
		g.roles.Add(name, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Role), nil
}

func (g *Graph) ListRoles(ctx context.Context) ([]*model.Role, error) {
	return g.store.ListRoles(ctx)
}

// EffectivePermissions returns the role's direct permissions united with those
// of every ancestor, deduplicated and sorted.
func (g *Graph) EffectivePermissions(ctx context.Context, roleName string) ([]string, error) {
	grants, err := g.Grants(ctx, roleName)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(grants))
	for p, src := range grants {
		if !strings.HasPrefix(src, SourceImplied) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out, nil
}

// ResolvedPermissions is EffectivePermissions expanded through implied permissions.
func (g *Graph) ResolvedPermissions(ctx context.Context, roleName string) ([]string, error) {
	grants, err := g.Grants(ctx, roleName)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(grants))
	for p := range grants {
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}

// Grants maps every permission the role resolves to onto where it comes from:
// the role itself, an ancestor, or an implication.
func (g *Graph) Grants(ctx context.Context, roleName string) (map[string]string, error) {
	roleName = normalize(roleName)
	if grants, ok := g.closures.Get(roleName); ok {
		return grants, nil
	}
	v, err, _ := g.group.Do("closure:"+roleName, func() (interface{}, error) {
		root, err := g.GetRole(ctx, roleName)
		if err != nil {
			return nil, err
		}
		grants, err := g.resolve(ctx, root, func(name string) (*model.Role, error) {
			return g.GetRole(ctx, name)
		})
		if err != nil {
			return nil, err
		}
		g.closures.Add(roleName, grants)
		return grants, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

type roleLookup func(name string) (*model.Role, error)

// resolve walks inheritsFrom breadth-first with a visited set, then expands implies.
func (g *Graph) resolve(ctx context.Context, root *model.Role, lookup roleLookup) (map[string]string, error) {
	grants := make(map[string]string)
	for _, p := range root.Permissions {
		grants[p] = SourceRole
	}

	visited := map[string]bool{root.Name: true}
	queue := slices.Clone(root.InheritsFrom)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		parent, err := lookup(name)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, p := range parent.Permissions {
			if _, ok := grants[p]; !ok {
				grants[p] = SourceInherited + parent.Name
			}
		}
		queue = append(queue, parent.InheritsFrom...)
	}

	base := make([]string, 0, len(grants))
	for p := range grants {
		base = append(base, p)
	}
	slices.Sort(base)
	for _, p := range base {
		implied, err := g.perms.ImpliedClosure(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, ip := range implied {
			if _, ok := grants[ip]; !ok {
				grants[ip] = SourceImplied + p
			}
		}
	}
	return grants, nil
}

// CanAssign reports whether a holder of one of assignerRoles may assign role.
// Roles that do not require approval can be assigned by anyone.
func (g *Graph) CanAssign(role *model.Role, assignerRoles ...string) bool {
	if !role.Constraints.RequiresApproval {
		return true
	}
	for _, ar := range assignerRoles {
		if role.IsAssignableBy(ar) {
			return true
		}
	}
	return false
}

// HasCapacity reports whether role can take another holder.
func (g *Graph) HasCapacity(role *model.Role) bool {
	return role.Constraints.MaxUsers == 0 || role.Stats.ActiveUsers < int64(role.Constraints.MaxUsers)
}

// RecomputeStats derives the role counters from the assignment records.
func (g *Graph) RecomputeStats(ctx context.Context, roleName string) (model.RoleStats, error) {
	roleName = normalize(roleName)
	var stats model.RoleStats
	err := g.store.WithTx(ctx, func(ctx context.Context) error {
		total, err := g.store.CountAssignments(ctx, repository.AssignmentFilter{Role: roleName})
		if err != nil {
			return err
		}
		active, err := g.store.CountAssignments(ctx, repository.AssignmentFilter{Role: roleName, ActiveOnly: true})
		if err != nil {
			return err
		}
		stats = model.RoleStats{TotalUsers: total, ActiveUsers: active}
		return g.store.SetRoleStats(ctx, roleName, stats)
	})
	if err != nil {
		return model.RoleStats{}, err
	}
	g.roles.Remove(roleName)
	return stats, nil
}

// Invalidate drops every cached role and closure.
func (g *Graph) Invalidate() {
	g.roles.Purge()
	g.closures.Purge()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
