package adapter

import (
	"context"
	"strings"

	"scopedrbac/internal/rbac/model"
	"scopedrbac/internal/rbac/scope"
)

// MaxBulkRelations bounds one BulkCreateRelations call.
const MaxBulkRelations = 100

type AssignmentService interface {
	Assign(ctx context.Context, userID, roleName, assignedBy string, opts model.AssignOptions) (*model.Assignment, error)
	Revoke(ctx context.Context, userID, roleName, actor, reason string) (*model.Assignment, error)
	ActiveAssignmentsFor(ctx context.Context, userID string) ([]*model.Assignment, error)
}

// LocalRelationAdapter implements RelationAdapter on the local assignment store.
type LocalRelationAdapter struct {
	assignments AssignmentService
}

func NewLocalRelationAdapter(assignments AssignmentService) *LocalRelationAdapter {
	return &LocalRelationAdapter{assignments: assignments}
}

func (a *LocalRelationAdapter) CreateRelation(ctx context.Context, actor string, req *RelationRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	_, err := a.assignments.Assign(ctx, req.UserID, req.Relation, actor, model.AssignOptions{
		Reason: req.Reason,
		Scope:  toScope(req),
	})
	return err
}

func (a *LocalRelationAdapter) DeleteRelation(ctx context.Context, actor string, req *RelationRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	_, err := a.assignments.Revoke(ctx, req.UserID, req.Relation, actor, req.Reason)
	return err
}

func (a *LocalRelationAdapter) CheckRelation(ctx context.Context, req *RelationRequest) (bool, error) {
	if err := validate(req); err != nil {
		return false, err
	}
	list, err := a.assignments.ActiveAssignmentsFor(ctx, req.UserID)
	if err != nil {
		return false, err
	}
	var tags []model.ResourceTag
	if tag, ok := toTag(req); ok {
		tags = append(tags, tag)
	}
	for _, as := range list {
		if as.Role == req.Relation && scope.InScope(as, tags) {
			return true, nil
		}
	}
	return false, nil
}

func (a *LocalRelationAdapter) BulkCreateRelations(ctx context.Context, actor string, reqs []*RelationRequest) (*BulkRelationResult, error) {
	if len(reqs) > MaxBulkRelations {
		return nil, model.ValidationErrorf("at most %d relations per batch, got %d", MaxBulkRelations, len(reqs))
	}

	result := &BulkRelationResult{}
	for _, req := range reqs {
		if err := a.CreateRelation(ctx, actor, req); err != nil {
			// A storage outage fails the remaining items too; stop early.
			if model.IsRetryable(err) {
				return result, err
			}
			result.FailedCount++
			result.FailedItems = append(result.FailedItems, FailedRelationItem{
				UserID:   req.UserID,
				Relation: req.Relation,
				Reason:   err.Error(),
			})
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

func validate(req *RelationRequest) error {
	if req == nil {
		return model.ValidationErrorf("relation is required")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Relation = strings.ToLower(strings.TrimSpace(req.Relation))
	req.ResourceType = strings.ToLower(strings.TrimSpace(req.ResourceType))
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	if err := model.GetValidator().Struct(req); err != nil {
		return model.ValidationErrorf("%s", model.FormatValidationError(err).Message)
	}
	if (req.ResourceID == "") != isUnscoped(req.ResourceType) {
		return model.ValidationErrorf("resource_id and resource_type must be given together")
	}
	return nil
}

// isUnscoped reports whether a resource type names no scoping hierarchy.
func isUnscoped(resourceType string) bool {
	switch resourceType {
	case "", "system", "global", "platform":
		return true
	}
	return false
}

func toTag(req *RelationRequest) (model.ResourceTag, bool) {
	if isUnscoped(req.ResourceType) {
		return model.ResourceTag{}, false
	}
	return model.ResourceTag{Kind: model.TagKind(req.ResourceType), ID: req.ResourceID}, true
}

func toScope(req *RelationRequest) model.ScopeRestriction {
	var s model.ScopeRestriction
	tag, ok := toTag(req)
	if !ok {
		return s
	}
	switch tag.Kind {
	case model.TagRegion:
		s.Regions = []string{tag.ID}
	case model.TagProject:
		s.Projects = []string{tag.ID}
	case model.TagScheme:
		s.Schemes = []string{tag.ID}
	default:
		s.Custom = map[string][]string{string(tag.Kind): {tag.ID}}
	}
	return s
}
