package domain

import "time"

// Role enumerates who is acting on the ticket desk.
type Role string

const (
	RoleCustomer   Role = "CUSTOMER"
	RoleAgent      Role = "AGENT"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleSupervisor, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to the support organization.
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleSupervisor || r == RoleAdmin
}

// Actor is the identity attached to every inbound mutation.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor marks mutations performed by the engine itself (e.g. SLA sweeps).
var SystemActor = Actor{}

func (a Actor) IsSystem() bool {
	return a.ID == ""
}

// User is a known account, customer or staff.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
