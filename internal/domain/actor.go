package domain

import "time"

// Role represents a workflow role held by an actor.
type Role string

// Roles.
const (
	RoleEmployee           Role = "employee"
	RoleHSSEExpert         Role = "hsse_expert"
	RoleHSSEManager        Role = "hsse_manager"
	RoleDepartmentManager  Role = "department_manager"
	RoleInvestigator       Role = "investigator"
	RoleContractController Role = "contract_controller"
	RoleContractorSiteRep  Role = "contractor_site_rep"
	RoleAdmin              Role = "admin"
)

// IsValid checks if the role is valid.
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleHSSEExpert, RoleHSSEManager, RoleDepartmentManager,
		RoleInvestigator, RoleContractController, RoleContractorSiteRep, RoleAdmin:
		return true
	}
	return false
}

// Actor is a resolved identity: who is attempting an operation, with the
// roles and department already looked up from the directory. Keeping the
// resolution outside the role gate keeps the gate itself side-effect free.
type Actor struct {
	ID           string
	Name         string
	Roles        []Role
	DepartmentID string
}

// HasRole reports whether the actor holds the given role.
func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// ManagerTier reports whether the actor holds a role allowed to close
// catastrophic-severity incidents.
func (a Actor) ManagerTier() bool {
	return a.HasRole(RoleHSSEManager) || a.HasRole(RoleAdmin)
}

// User is a directory record. Password holds the bcrypt hash.
type User struct {
	ID           string
	TenantID     string
	Email        string
	Name         string
	Password     string
	Roles        []Role
	DepartmentID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor converts the directory record into a resolved actor.
func (u User) Actor() Actor {
	return Actor{
		ID:           u.ID,
		Name:         u.Name,
		Roles:        u.Roles,
		DepartmentID: u.DepartmentID,
	}
}

// RefreshToken is a stored session token. Token holds the SHA-256 hash
// of the opaque value handed to the client.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
