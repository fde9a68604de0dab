// Package scope decides whether a tagged resource falls inside an assignment's
// scope restriction.
package scope

import (
	"slices"

	"scopedrbac/internal/rbac/model"
)

// InScope reports whether tags fall inside the assignment's restriction.
// Tags are grouped by kind. A kind with an empty restriction set is unrestricted;
// otherwise at least one tag id of that kind must be in the set. Every kind
// present on the resource must pass. Kinds absent from the resource never deny.
func InScope(a *model.Assignment, tags []model.ResourceTag) bool {
	byKind := make(map[model.TagKind][]string)
	for _, t := range tags {
		byKind[t.Kind] = append(byKind[t.Kind], t.ID)
	}
	for kind, ids := range byKind {
		allowed := a.Scope.IDs(kind)
		if len(allowed) == 0 {
			continue
		}
		if !slices.ContainsFunc(ids, func(id string) bool { return slices.Contains(allowed, id) }) {
			return false
		}
	}
	return true
}

// AnyInScope reports whether at least one assignment covers tags.
// It returns the first covering assignment.
func AnyInScope(assignments []*model.Assignment, tags []model.ResourceTag) (*model.Assignment, bool) {
	for _, a := range assignments {
		if InScope(a, tags) {
			return a, true
		}
	}
	return nil, false
}

// CheckRestriction validates a requested restriction against the role's scope configuration.
func CheckRestriction(cfg model.RoleScopeConfig, r model.ScopeRestriction) error {
	n := r.Count()
	if !cfg.AllowMultipleScopes && n > 1 {
		return model.ValidationErrorf("role allows a single scope, got %d", n)
	}
	if cfg.MaxScopes > 0 && n > cfg.MaxScopes {
		return model.ValidationErrorf("role allows at most %d scopes, got %d", cfg.MaxScopes, n)
	}
	return nil
}
