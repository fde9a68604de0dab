package model

import (
	"fmt"
	"strings"
	"time"
)

// ScopeClass is the breadth at which a permission applies.
type ScopeClass string

const (
	ScopeGlobal      ScopeClass = "global"
	ScopeRegional    ScopeClass = "regional"
	ScopeProject     ScopeClass = "project"
	ScopeScheme      ScopeClass = "scheme"
	ScopeOwn         ScopeClass = "own"
	ScopeSubordinate ScopeClass = "subordinate"
)

// SecurityLevel is an ordinal classification; higher is more sensitive.
type SecurityLevel int

const (
	LevelPublic SecurityLevel = iota
	LevelInternal
	LevelConfidential
	LevelRestricted
	LevelTopSecret
)

var securityLevelNames = []string{"public", "internal", "confidential", "restricted", "top_secret"}

func (l SecurityLevel) String() string {
	if l < 0 || int(l) >= len(securityLevelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return securityLevelNames[l]
}

func (l SecurityLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *SecurityLevel) UnmarshalText(b []byte) error {
	parsed, err := ParseSecurityLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseSecurityLevel converts a level name into its ordinal.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range securityLevelNames {
		if name == s {
			return SecurityLevel(i), nil
		}
	}
	return LevelPublic, ValidationErrorf("unknown security level %q", s)
}

// Category groups permissions by the kind of operation they allow.
type Category string

const (
	CategoryCreate  Category = "create"
	CategoryRead    Category = "read"
	CategoryUpdate  Category = "update"
	CategoryDelete  Category = "delete"
	CategoryApprove Category = "approve"
	CategoryExport  Category = "export"
	CategoryManage  Category = "manage"
)

// Permission is a catalog entry. Name follows the module.action.scope convention.
type Permission struct {
	Name          string        `bson:"_id" json:"name" validate:"required,min=3,max=120"`
	DisplayName   string        `bson:"display_name,omitempty" json:"display_name,omitempty"`
	Description   string        `bson:"description,omitempty" json:"description,omitempty"`
	Module        string        `bson:"module" json:"module" validate:"required,max=60"`
	Resource      string        `bson:"resource,omitempty" json:"resource,omitempty"`
	Action        string        `bson:"action,omitempty" json:"action,omitempty"`
	Category      Category      `bson:"category" json:"category" validate:"required,oneof=create read update delete approve export manage"`
	Scope         ScopeClass    `bson:"scope" json:"scope" validate:"required,oneof=global regional project scheme own subordinate"`
	SecurityLevel SecurityLevel `bson:"security_level" json:"security_level" validate:"min=0,max=4"`
	Active        bool          `bson:"active" json:"active"`
	AuditRequired bool          `bson:"audit_required" json:"audit_required"`
	Conditions    Conditions    `bson:"conditions" json:"conditions"`

	Requires  []string `bson:"requires,omitempty" json:"requires,omitempty"`
	Conflicts []string `bson:"conflicts,omitempty" json:"conflicts,omitempty"`
	Implies   []string `bson:"implies,omitempty" json:"implies,omitempty"`

	CreatedBy string    `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Normalize trims identifiers and removes duplicate edges.
func (p *Permission) Normalize() {
	p.Name = strings.ToLower(strings.TrimSpace(p.Name))
	p.Module = strings.ToLower(strings.TrimSpace(p.Module))
	p.Requires = normalizeNames(p.Requires)
	p.Conflicts = normalizeNames(p.Conflicts)
	p.Implies = normalizeNames(p.Implies)
}

// Validate checks field-level constraints. Graph constraints are checked by the catalog.
func (p *Permission) Validate() error {
	p.Normalize()
	if err := GetValidator().Struct(p); err != nil {
		return ValidationErrorf("%s", FormatValidationError(err).Message)
	}
	for _, edges := range [][]string{p.Requires, p.Conflicts, p.Implies} {
		for _, name := range edges {
			if name == p.Name {
				return ValidationErrorf("permission %q references itself", p.Name)
			}
		}
	}
	if err := p.Conditions.Validate(); err != nil {
		return err
	}
	return nil
}

func normalizeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
