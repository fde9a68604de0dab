package policy

import (
	"embed"
	"encoding/json"
	"fmt"

	"scopedrbac/internal/rbac/model"
)

//go:embed policies/*.json
var policiesFS embed.FS

// Loader loads policy configurations from embedded JSON files
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

func readJSON(name string, v any) error {
	data, err := policiesFS.ReadFile("policies/" + name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// LoadAPIConfigs loads the route permission table keyed by "METHOD:PATH".
func (l *Loader) LoadAPIConfigs() (map[string]*APIConfig, error) {
	var list []*APIConfig
	if err := readJSON("api.json", &list); err != nil {
		return nil, err
	}
	configs := make(map[string]*APIConfig, len(list))
	for _, c := range list {
		if _, dup := configs[c.Key()]; dup {
			return nil, fmt.Errorf("duplicate api config %s", c.Key())
		}
		configs[c.Key()] = c
	}
	return configs, nil
}

// LoadPermissions loads the seeded permission definitions.
func (l *Loader) LoadPermissions() ([]*model.Permission, error) {
	var perms []*model.Permission
	if err := readJSON("permissions.json", &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// LoadRoles loads the seeded role definitions, expanding AllPermissions against
// the seeded permission names.
func (l *Loader) LoadRoles(perms []*model.Permission) ([]*model.Role, error) {
	var defs []*RoleDefinition
	if err := readJSON("roles.json", &defs); err != nil {
		return nil, err
	}
	roles := make([]*model.Role, 0, len(defs))
	for _, d := range defs {
		r := d.Role
		if d.AllPermissions {
			r.Permissions = make([]string, 0, len(perms))
			for _, p := range perms {
				r.Permissions = append(r.Permissions, p.Name)
			}
		}
		roles = append(roles, &r)
	}
	return roles, nil
}
