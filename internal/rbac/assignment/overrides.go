package assignment

import (
	"context"
	"errors"
	"time"

	"scopedrbac/internal/rbac/model"
)

type overrideKind int

const (
	overrideGrant overrideKind = iota
	overrideRestrict
)

func (k overrideKind) String() string {
	if k == overrideRestrict {
		return "restriction"
	}
	return "grant"
}

func (k overrideKind) list(a *model.Assignment) *[]model.PermissionOverride {
	if k == overrideRestrict {
		return &a.RestrictedPermissions
	}
	return &a.AdditionalPermissions
}

// AddOverridePermission grants permission on this assignment only. Re-adding the
// same permission replaces the earlier entry.
func (s *Service) AddOverridePermission(ctx context.Context, assignmentID, permission, grantedBy, reason string, expiresAt *time.Time) (*model.Assignment, error) {
	return s.upsertOverride(ctx, overrideGrant, assignmentID, permission, grantedBy, reason, expiresAt)
}

// AddRestriction withholds permission on this assignment even when the role grants it.
// Re-adding the same permission replaces the earlier entry.
func (s *Service) AddRestriction(ctx context.Context, assignmentID, permission, restrictedBy, reason string, expiresAt *time.Time) (*model.Assignment, error) {
	return s.upsertOverride(ctx, overrideRestrict, assignmentID, permission, restrictedBy, reason, expiresAt)
}

func (s *Service) RemoveOverridePermission(ctx context.Context, assignmentID, permission, actor string) (*model.Assignment, error) {
	return s.removeOverride(ctx, overrideGrant, assignmentID, permission, actor)
}

func (s *Service) RemoveRestriction(ctx context.Context, assignmentID, permission, actor string) (*model.Assignment, error) {
	return s.removeOverride(ctx, overrideRestrict, assignmentID, permission, actor)
}

func (s *Service) upsertOverride(ctx context.Context, kind overrideKind, assignmentID, permission, actor, reason string, expiresAt *time.Time) (*model.Assignment, error) {
	permission = normalize(permission)
	now := s.now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, model.ValidationErrorf("override expiry must be in the future")
	}
	if _, err := s.perms.Get(ctx, permission); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ValidationErrorf("unknown permission %q", permission)
		}
		return nil, err
	}

	var updated *model.Assignment
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.store.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		entry := model.PermissionOverride{
			Permission: permission,
			Actor:      actor,
			Reason:     reason,
			CreatedAt:  now,
			ExpiresAt:  expiresAt,
		}
		list := kind.list(a)
		replaced := false
		for i := range *list {
			if (*list)[i].Permission == permission {
				(*list)[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			*list = append(*list, entry)
		}
		a.UpdatedAt = now
		a.History = append(a.History, model.HistoryEntry{
			Action:    model.HistoryModified,
			Actor:     actor,
			Timestamp: now,
			Details:   details("added_"+kind.String(), permission, "reason", reason),
		})
		if err := s.store.ReplaceAssignment(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	s.metrics.ObserveMutation("add_"+kind.String(), err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("assignment override added",
		"assignment_id", assignmentID, "kind", kind.String(), "permission", permission, "actor", actor)
	return updated, nil
}

// removeOverride is a no-op when the permission is not listed.
func (s *Service) removeOverride(ctx context.Context, kind overrideKind, assignmentID, permission, actor string) (*model.Assignment, error) {
	permission = normalize(permission)
	var updated *model.Assignment
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.store.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		list := kind.list(a)
		kept := (*list)[:0]
		for _, o := range *list {
			if o.Permission != permission {
				kept = append(kept, o)
			}
		}
		updated = a
		if len(kept) == len(*list) {
			return nil
		}
		*list = kept
		now := s.now()
		a.UpdatedAt = now
		a.History = append(a.History, model.HistoryEntry{
			Action:    model.HistoryModified,
			Actor:     actor,
			Timestamp: now,
			Details:   details("removed_"+kind.String(), permission),
		})
		return s.store.ReplaceAssignment(ctx, a)
	})
	s.metrics.ObserveMutation("remove_"+kind.String(), err)
	if err != nil {
		return nil, err
	}
	return updated, nil
}
