package policy

import "scopedrbac/internal/rbac/model"

// APIConfig binds an HTTP route to the permission its caller must hold.
type APIConfig struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Operation string `json:"operation"`
	// Permission is empty for routes that only need an identified caller.
	Permission string `json:"permission"`
	// SelfAllowed lets a caller act on their own user id without the permission.
	SelfAllowed bool `json:"self_allowed,omitempty"`
}

// Key is the lookup key used by the middleware: "METHOD:PATH".
func (c *APIConfig) Key() string {
	return c.Method + ":" + c.Path
}

// RoleDefinition is a seeded role. AllPermissions attaches every seeded permission.
type RoleDefinition struct {
	model.Role
	AllPermissions bool `json:"all_permissions,omitempty"`
}
