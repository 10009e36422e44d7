package enums

import "fmt"

// ActorRole represents an establishment-scoped permissions role.
type ActorRole string

const (
	RoleOwner    ActorRole = "owner"
	RoleAdmin    ActorRole = "admin"
	RoleStaff    ActorRole = "staff"
	RoleCustomer ActorRole = "customer"
)

var validActorRoles = []ActorRole{
	RoleOwner,
	RoleAdmin,
	RoleStaff,
	RoleCustomer,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsEstablishmentSide reports whether the role acts on behalf of the
// establishment rather than as a visiting customer.
func (r ActorRole) IsEstablishmentSide() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
