package policy

import (
	"context"
	"fmt"
	"sort"

	"scopedrbac/internal/rbac/model"
)

// PermissionChecker is the part of the resolver the engine needs.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string, cc model.CheckContext) bool
}

// Engine maps API operations to required permissions and evaluates them.
type Engine struct {
	apiConfigs map[string]*APIConfig
	checker    PermissionChecker
}

// NewEngine creates a new Engine from the embedded API table.
func NewEngine(checker PermissionChecker) (*Engine, error) {
	configs, err := NewLoader().LoadAPIConfigs()
	if err != nil {
		return nil, fmt.Errorf("failed to load api configs: %w", err)
	}
	return &Engine{apiConfigs: configs, checker: checker}, nil
}

// GetAPIConfig returns the config for a route, if one exists.
func (e *Engine) GetAPIConfig(method, path string) (*APIConfig, bool) {
	c, ok := e.apiConfigs[method+":"+path]
	return c, ok
}

// OperationRequest describes a caller invoking an API operation.
type OperationRequest struct {
	CallerID string
	// SubjectID is the user the operation acts on, when the route names one.
	SubjectID string
	SourceIP  string
	Config    *APIConfig
}

// CheckOperationPermission reports whether the caller may perform the operation.
func (e *Engine) CheckOperationPermission(ctx context.Context, req OperationRequest) bool {
	c := req.Config
	if c == nil || c.Permission == "" {
		return true
	}
	if c.SelfAllowed && req.SubjectID != "" && req.SubjectID == req.CallerID {
		return true
	}
	return e.checker.HasPermission(ctx, req.CallerID, c.Permission, model.CheckContext{SourceIP: req.SourceIP})
}

// Permissions returns the distinct permissions referenced by the API table.
func (e *Engine) Permissions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range e.apiConfigs {
		if c.Permission != "" && !seen[c.Permission] {
			seen[c.Permission] = true
			out = append(out, c.Permission)
		}
	}
	sort.Strings(out)
	return out
}
