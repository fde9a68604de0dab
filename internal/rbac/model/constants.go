package model

// Roles seeded at startup
const (
	RoleSuperAdmin      = "super_admin"
	RoleAdmin           = "admin"
	RoleRegionalManager = "regional_manager"
	RoleProjectOfficer  = "project_officer"
	RoleFieldAgent      = "field_agent"
	RoleViewer          = "viewer"
)

// Permission constants for the RBAC administration surface
const (
	PermRBACPermissionRead   = "rbac.read.global"
	PermRBACPermissionManage = "rbac.permission.manage"
	PermRBACRoleManage       = "rbac.role.manage"
	PermRBACAssignmentManage = "rbac.assignment.manage"
	PermRBACAssignmentRead   = "rbac.assignment.read"
	PermRBACSweep            = "rbac.sweep.manage"
)

// SystemActor records mutations performed by the process itself (seeding, sweeps).
const SystemActor = "system"
