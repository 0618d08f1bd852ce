package models

import "time"

// UserRole represents the available roles for the access control system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleReviewer   UserRole = "REVIEWER"
	RoleUser       UserRole = "USER"
)

// Permission identifies a single administrative capability.
type Permission string

const (
	PermApproveProviders     Permission = "APPROVE_PROVIDERS"
	PermApproveOrganizations Permission = "APPROVE_ORGANIZATIONS"
	PermApproveRequirements  Permission = "APPROVE_REQUIREMENTS"
	PermAccessAnyAccount     Permission = "ACCESS_ANY_ACCOUNT"
	PermManageInvitations    Permission = "MANAGE_INVITATIONS"
	PermViewAuditLogs        Permission = "VIEW_AUDIT_LOGS"
	PermManageUsers          Permission = "MANAGE_USERS"
)

// rolePermissions maps each role onto its granted permission set.
var rolePermissions = map[UserRole][]Permission{
	RoleSuperAdmin: {
		PermApproveProviders,
		PermApproveOrganizations,
		PermApproveRequirements,
		PermAccessAnyAccount,
		PermManageInvitations,
		PermViewAuditLogs,
		PermManageUsers,
	},
	RoleAdmin: {
		PermApproveProviders,
		PermApproveOrganizations,
		PermApproveRequirements,
		PermManageInvitations,
		PermViewAuditLogs,
	},
	RoleReviewer: {
		PermApproveRequirements,
	},
	RoleUser: {},
}

// PermissionsFor returns the permissions granted to a role.
func PermissionsFor(role UserRole) []Permission {
	return rolePermissions[role]
}

// RoleHasPermission reports whether the role grants the given permission.
func RoleHasPermission(role UserRole, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// IsAdminRole reports whether the role belongs to platform staff.
func IsAdminRole(role UserRole) bool {
	return role == RoleSuperAdmin || role == RoleAdmin || role == RoleReviewer
}

// User represents an application account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
