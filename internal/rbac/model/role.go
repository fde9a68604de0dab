package model

import (
	"slices"
	"strings"
	"time"
)

// RoleType distinguishes seeded roles from ones created by administrators.
type RoleType string

const (
	RoleTypeSystem RoleType = "system"
	RoleTypeCustom RoleType = "custom"
)

type Role struct {
	Name        string   `bson:"_id" json:"name" validate:"required,min=2,max=60"`
	DisplayName string   `bson:"display_name" json:"display_name" validate:"max=120"`
	Description string   `bson:"description,omitempty" json:"description,omitempty"`
	Type        RoleType `bson:"type" json:"type" validate:"required,oneof=system custom"`
	// Level is an ordinal rank; 0 is the highest.
	Level    int    `bson:"level" json:"level" validate:"min=0,max=100"`
	Category string `bson:"category,omitempty" json:"category,omitempty"`
	Active   bool   `bson:"active" json:"active"`

	ScopeConfig RoleScopeConfig `bson:"scope_config" json:"scope_config"`
	Constraints RoleConstraints `bson:"constraints" json:"constraints"`

	Permissions  []string `bson:"permissions" json:"permissions"`
	InheritsFrom []string `bson:"inherits_from,omitempty" json:"inherits_from,omitempty"`

	Stats RoleStats `bson:"stats" json:"stats"`

	CreatedBy string    `bson:"created_by,omitempty" json:"created_by,omitempty"`
	UpdatedBy string    `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// RoleScopeConfig describes the scope classes a role may act at.
type RoleScopeConfig struct {
	AllowedScopes       []ScopeClass `bson:"allowed_scopes,omitempty" json:"allowed_scopes,omitempty"`
	DefaultScope        ScopeClass   `bson:"default_scope,omitempty" json:"default_scope,omitempty"`
	AllowMultipleScopes bool         `bson:"allow_multiple_scopes" json:"allow_multiple_scopes"`
	MaxScopes           int          `bson:"max_scopes,omitempty" json:"max_scopes,omitempty" validate:"min=0"`
}

type RoleConstraints struct {
	// MaxUsers of zero means unlimited.
	MaxUsers         int      `bson:"max_users,omitempty" json:"max_users,omitempty" validate:"min=0"`
	RequiresApproval bool     `bson:"requires_approval" json:"requires_approval"`
	AssignableBy     []string `bson:"assignable_by,omitempty" json:"assignable_by,omitempty"`
	Deletable        bool     `bson:"deletable" json:"deletable"`
	Modifiable       bool     `bson:"modifiable" json:"modifiable"`
}

// RoleStats is maintained in the same transaction as the assignment mutations
// that change it, and can be recomputed from the assignment store.
type RoleStats struct {
	TotalUsers  int64 `bson:"total_users" json:"total_users"`
	ActiveUsers int64 `bson:"active_users" json:"active_users"`
}

func (r *Role) IsSystem() bool {
	return r.Type == RoleTypeSystem
}

func (r *Role) Normalize() {
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Permissions = normalizeNames(r.Permissions)
	r.InheritsFrom = normalizeNames(r.InheritsFrom)
	r.Constraints.AssignableBy = normalizeNames(r.Constraints.AssignableBy)
	if r.Type == "" {
		r.Type = RoleTypeCustom
	}
}

func (r *Role) Validate() error {
	r.Normalize()
	if err := GetValidator().Struct(r); err != nil {
		return ValidationErrorf("%s", FormatValidationError(err).Message)
	}
	if slices.Contains(r.InheritsFrom, r.Name) {
		return ValidationErrorf("role %q inherits from itself", r.Name)
	}
	return nil
}

// IsAssignableBy reports whether a holder of assignerRole may assign this role.
func (r *Role) IsAssignableBy(assignerRole string) bool {
	return slices.Contains(r.Constraints.AssignableBy, assignerRole)
}
