package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of profile roles.  The zero value is not a valid
// role; use ParseRole to convert untrusted input.
type Role string

const (
	RoleNeighbor Role = "neighbor" // default resident role
	RoleTrainer  Role = "trainer"  // extended horizon, no daily cap, may label bookings
	RoleAdmin    Role = "admin"    // unrestricted, may override bookings and change roles
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleNeighbor, RoleTrainer, RoleAdmin}

// ParseRole normalizes s and returns the matching Role.  Unknown values
// produce an error naming the accepted roles.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleNeighbor:
		return RoleNeighbor, nil
	case RoleTrainer:
		return RoleTrainer, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("invalid role %q: must be one of neighbor, trainer, admin", s)
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleNeighbor, RoleTrainer, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanLabelBookings reports whether bookings created by r may carry a
// client reference.
func (r Role) CanLabelBookings() bool {
	switch r {
	case RoleTrainer, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }
