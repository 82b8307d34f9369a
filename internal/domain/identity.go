package domain

// Role distinguishes the two sides of a support chat.
type Role string

const (
	RoleUser      Role = "user"
	RoleLibrarian Role = "librarian"
)

// Identity is the authenticated actor behind a connection or request.
// It is resolved at the edge by the session layer and trusted here.
type Identity struct {
	UserID string
	Name   string
	Role   Role
}

// Capabilities is the role-specific action set consumed by the shared
// client controller instead of branching on the role everywhere.
type Capabilities struct {
	CanClaim bool
	CanClose bool
}

// CapabilitiesFor returns the capability set for a role.
func CapabilitiesFor(role Role) Capabilities {
	if role == RoleLibrarian {
		return Capabilities{CanClaim: true, CanClose: true}
	}
	return Capabilities{}
}
