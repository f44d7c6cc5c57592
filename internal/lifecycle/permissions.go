package lifecycle

import "github.com/helpdesk-labs/ticket-lifecycle/internal/domain"

// Permission names one guarded capability.
type Permission string

const (
	PermChangeStatus        Permission = "change_status"
	PermChangePriority      Permission = "change_priority"
	PermChangeIssueType     Permission = "change_issue_type"
	PermAssign              Permission = "assign"
	PermEditDetails         Permission = "edit_details"
	PermReopenOwn           Permission = "reopen_own"
	PermReceiveBreachAlerts Permission = "receive_breach_alerts"
)

var staffPermissions = []Permission{
	PermChangeStatus, PermChangePriority, PermChangeIssueType, PermAssign, PermEditDetails,
}

var matrix = map[domain.Role]map[Permission]bool{
	domain.RoleCustomer:   grant(PermReopenOwn),
	domain.RoleAgent:      grant(staffPermissions...),
	domain.RoleSupervisor: grant(append(staffPermissions, PermReceiveBreachAlerts)...),
	domain.RoleAdmin:      grant(append(staffPermissions, PermReceiveBreachAlerts)...),
}

func grant(perms ...Permission) map[Permission]bool {
	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set
}

// Allowed reports whether role holds perm. Unknown roles hold nothing.
func Allowed(role domain.Role, perm Permission) bool {
	return matrix[role][perm]
}

// RolesWith lists every role holding perm, in a stable order.
func RolesWith(perm Permission) []domain.Role {
	var roles []domain.Role
	for _, role := range []domain.Role{domain.RoleCustomer, domain.RoleAgent, domain.RoleSupervisor, domain.RoleAdmin} {
		if Allowed(role, perm) {
			roles = append(roles, role)
		}
	}
	return roles
}
