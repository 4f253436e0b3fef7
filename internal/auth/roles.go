package auth

// Role is an authorisation tier carried in the token.
type Role string

const (
	// RoleViewer may read device, service and telemetry state.
	RoleViewer Role = "viewer"

	// RoleAdmin may also trigger control operations such as an
	// immediate re-advertisement.
	RoleAdmin Role = "admin"
)

// Permission names an admin API capability.
type Permission string

const (
	PermStatusRead    Permission = "status:read"
	PermEventsStream  Permission = "events:stream"
	PermServerControl Permission = "server:control"
	PermAuditRead     Permission = "audit:read"
)

var rolePermissions = map[Role][]Permission{
	RoleViewer: {PermStatusRead, PermEventsStream},
	RoleAdmin:  {PermStatusRead, PermEventsStream, PermServerControl, PermAuditRead},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	_, ok := rolePermissions[r]
	return ok
}
