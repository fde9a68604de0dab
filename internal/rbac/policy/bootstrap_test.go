package policy

import (
	"context"
	"testing"

	"scopedrbac/internal/rbac/assignment"
	"scopedrbac/internal/rbac/catalog"
	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/repository"
	"scopedrbac/internal/rbac/resolver"
	"scopedrbac/internal/rbac/rolegraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapper_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	cat := catalog.New(repo, catalog.Options{})
	graph := rolegraph.New(repo, cat, rolegraph.Options{})
	svc := assignment.NewService(repo, graph, cat, assignment.Options{})
	b := NewBootstrapper(cat, graph, svc, nil)

	perms, err := NewLoader().LoadPermissions()
	require.NoError(t, err)

	res, err := b.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(perms), res.Permissions)
	assert.Equal(t, 6, res.Roles)

	res, err = b.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, res)

	admin, err := graph.GetRole(ctx, model.RoleSuperAdmin)
	require.NoError(t, err)
	assert.False(t, admin.Constraints.Deletable)
	assert.False(t, admin.Constraints.Modifiable)

	resolved, err := graph.ResolvedPermissions(ctx, model.RoleProjectOfficer)
	require.NoError(t, err)
	assert.Contains(t, resolved, "project.read.regional")
	assert.Contains(t, resolved, "beneficiary.read.scheme")
	assert.Contains(t, resolved, "fieldvisit.read.own")
}

func TestBootstrapper_EnsureSuperAdmin(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	cat := catalog.New(repo, catalog.Options{})
	graph := rolegraph.New(repo, cat, rolegraph.Options{})
	svc := assignment.NewService(repo, graph, cat, assignment.Options{})
	res := resolver.New(svc, graph, cat, resolver.Options{})
	b := NewBootstrapper(cat, graph, svc, nil)

	_, err := b.Seed(ctx)
	require.NoError(t, err)
	require.NoError(t, b.EnsureSuperAdmin(ctx, "root"))
	require.NoError(t, b.EnsureSuperAdmin(ctx, "root"))
	require.NoError(t, b.EnsureSuperAdmin(ctx, ""))

	list, err := svc.ListForUser(ctx, "root")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	for _, p := range []string{model.PermRBACRoleManage, model.PermRBACSweep, "project.approve.regional"} {
		assert.True(t, res.HasPermission(ctx, "root", p, model.CheckContext{}), p)
	}
}
