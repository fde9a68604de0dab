package rolegraph

import (
	"context"
	"errors"
	"slices"
	"strings"

	"scopedrbac/internal/rbac/graph"
	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/repository"
)

// CreateRole stores a new role after checking its permissions and inheritance.
// Custom roles are created deletable and modifiable; system roles are neither.
func (g *Graph) CreateRole(ctx context.Context, r *model.Role, actor string) (*model.Role, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	custom := !r.IsSystem()
	r.Constraints.Deletable = custom
	r.Constraints.Modifiable = custom
	r.Stats = model.RoleStats{}
	now := g.now()
	r.CreatedBy, r.UpdatedBy = actor, actor
	r.CreatedAt, r.UpdatedAt = now, now

	err := g.store.WithTx(ctx, func(ctx context.Context) error {
		if err := g.validateDefinition(ctx, r); err != nil {
			return err
		}
		err := g.store.InsertRole(ctx, r)
		if errors.Is(err, repository.ErrDuplicate) {
			return model.ValidationErrorf("role %q already exists", r.Name)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	g.Invalidate()
	g.logger.Info("role created", "role", r.Name, "type", r.Type, "actor", actor)
	return r, nil
}

// UpdateRole replaces a custom role's definition. Counters and audit fields are kept.
func (g *Graph) UpdateRole(ctx context.Context, r *model.Role, actor string) (*model.Role, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	err := g.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := g.store.GetRole(ctx, r.Name)
		if err != nil {
			return err
		}
		if current.IsSystem() || !current.Constraints.Modifiable {
			return model.ValidationErrorf("role %q is not modifiable", r.Name)
		}
		r.Type = current.Type
		r.Constraints.Deletable = current.Constraints.Deletable
		r.Constraints.Modifiable = current.Constraints.Modifiable
		r.Stats = current.Stats
		r.CreatedBy, r.CreatedAt = current.CreatedBy, current.CreatedAt
		r.UpdatedBy, r.UpdatedAt = actor, g.now()

		if err := g.validateDefinition(ctx, r); err != nil {
			return err
		}
		return g.store.ReplaceRole(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	g.Invalidate()
	g.logger.Info("role updated", "role", r.Name, "actor", actor)
	return r, nil
}

// DeleteRole removes a custom role that no active assignment and no other role references.
func (g *Graph) DeleteRole(ctx context.Context, name, actor string) error {
	name = normalize(name)
	err := g.store.WithTx(ctx, func(ctx context.Context) error {
		current, err := g.store.GetRole(ctx, name)
		if err != nil {
			return err
		}
		if current.IsSystem() || !current.Constraints.Deletable {
			return model.ValidationErrorf("role %q is not deletable", name)
		}
		active, err := g.store.CountAssignments(ctx, repository.AssignmentFilter{Role: name, ActiveOnly: true})
		if err != nil {
			return err
		}
		if active > 0 {
			return model.ConflictErrorf("role %q has %d active assignments", name, active)
		}
		roles, err := g.store.ListRoles(ctx)
		if err != nil {
			return err
		}
		for _, other := range roles {
			if slices.Contains(other.InheritsFrom, name) {
				return model.ConflictErrorf("role %q inherits from %q", other.Name, name)
			}
		}
		return g.store.DeleteRole(ctx, name)
	})
	if err != nil {
		return err
	}

	g.Invalidate()
	g.logger.Info("role deleted", "role", name, "actor", actor)
	return nil
}

// validateDefinition checks r against the stored roles as if r were already saved:
// permissions exist, parents exist, inheritance is acyclic, and the closures of r
// and of every role inheriting from it hold no conflicting pair and no missing prerequisite.
func (g *Graph) validateDefinition(ctx context.Context, r *model.Role) error {
	for _, p := range r.Permissions {
		if _, err := g.perms.Get(ctx, p); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.ValidationErrorf("role %q references unknown permission %q", r.Name, p)
			}
			return err
		}
	}

	stored, err := g.store.ListRoles(ctx)
	if err != nil {
		return err
	}
	roles := make(map[string]*model.Role, len(stored)+1)
	for _, s := range stored {
		roles[s.Name] = s
	}
	roles[r.Name] = r

	for _, parent := range r.InheritsFrom {
		if _, ok := roles[parent]; !ok {
			return model.ValidationErrorf("role %q inherits from unknown role %q", r.Name, parent)
		}
	}

	edges := func(n string) []string {
		if role, ok := roles[n]; ok {
			return role.InheritsFrom
		}
		return nil
	}
	if cycle := graph.FindCycle(r.Name, edges); cycle != nil {
		return model.ValidationErrorf("inheritance cycle: %s", strings.Join(cycle, " -> "))
	}

	lookup := func(name string) (*model.Role, error) {
		if role, ok := roles[name]; ok {
			return role, nil
		}
		return nil, model.NotFoundErrorf("role %s", name)
	}
	affected := []*model.Role{r}
	for _, other := range roles {
		if other.Name != r.Name && slices.Contains(graph.Reachable(other.Name, edges), r.Name) {
			affected = append(affected, other)
		}
	}
	for _, role := range affected {
		grants, err := g.resolve(ctx, role, lookup)
		if err != nil {
			return err
		}
		if err := g.checkClosure(ctx, role.Name, grants); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) checkClosure(ctx context.Context, roleName string, grants map[string]string) error {
	names := make([]string, 0, len(grants))
	for p := range grants {
		names = append(names, p)
	}
	slices.Sort(names)

	for _, name := range names {
		p, err := g.perms.Get(ctx, name)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		for _, c := range p.Conflicts {
			if _, ok := grants[c]; ok {
				return model.ValidationErrorf("role %q would hold conflicting permissions %q and %q", roleName, name, c)
			}
		}
		for _, req := range p.Requires {
			if _, ok := grants[req]; !ok {
				return model.ValidationErrorf("role %q grants %q without its prerequisite %q", roleName, name, req)
			}
		}
	}
	return nil
}
