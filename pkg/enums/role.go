package enums

import "fmt"

// Role is the account-level role carried on every principal.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

var validRoles = []Role{
	RoleCustomer,
	RoleStaff,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// Capability names an action that requires elevated rights.
type Capability string

const (
	CapCreditStamps    Capability = "stamps:credit"
	CapRedeemCodes     Capability = "codes:redeem"
	CapResetAnyProfile Capability = "profiles:reset_any"
	CapViewAnyStatus   Capability = "status:view_any"
	CapViewStats       Capability = "stats:view"
)

var roleCapabilities = map[Role][]Capability{
	RoleStaff: {
		CapCreditStamps,
		CapRedeemCodes,
		CapResetAnyProfile,
		CapViewAnyStatus,
		CapViewStats,
	},
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}
