package auth

// Role represents a user role.
type Role string

const (
	// RoleViewer reads sensors, series and alerts.
	RoleViewer Role = "viewer"
	// RoleOperator additionally downloads reports.
	RoleOperator Role = "operator"
	// RoleAdmin has every permission.
	RoleAdmin Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole validates a role string.
func NormalizeRole(value string) (Role, bool) {
	role := Role(value)
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast returns true when role satisfies required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}
