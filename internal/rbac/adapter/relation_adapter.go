package adapter

import (
	"context"
)

// RelationRequest is a relation-style assignment payload: the user holds
// Relation (a role) on the resource named by ResourceType and ResourceID.
type RelationRequest struct {
	UserID       string `json:"user_id" validate:"required,max=100"`
	Relation     string `json:"relation" validate:"required,max=60"`
	ResourceID   string `json:"resource_id,omitempty" validate:"max=100"`
	ResourceType string `json:"resource_type,omitempty" validate:"max=40"`
	Reason       string `json:"reason,omitempty" validate:"max=500"`
}

// BulkRelationResult represents the result of a bulk relation operation
type BulkRelationResult struct {
	SuccessCount int                  `json:"success_count"`
	FailedCount  int                  `json:"failed_count"`
	FailedItems  []FailedRelationItem `json:"failed_items,omitempty"`
}

// FailedRelationItem represents a failed item in bulk operation
type FailedRelationItem struct {
	UserID   string `json:"user_id"`
	Relation string `json:"relation"`
	Reason   string `json:"reason"`
}

// RelationAdapter maps relation operations onto role assignments.
type RelationAdapter interface {
	CreateRelation(ctx context.Context, actor string, req *RelationRequest) error
	DeleteRelation(ctx context.Context, actor string, req *RelationRequest) error
	// CheckRelation reports whether a currently valid assignment covers the relation.
	CheckRelation(ctx context.Context, req *RelationRequest) (bool, error)
	// BulkCreateRelations assigns each item independently; one failure does not undo the others.
	BulkCreateRelations(ctx context.Context, actor string, reqs []*RelationRequest) (*BulkRelationResult, error)
}
