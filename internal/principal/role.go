package principal

import (
	"fmt"
	"strings"
)

// Role identifies one of the disjoint principal families.
type Role string

const (
	RoleUser            Role = "user"
	RoleAdmin           Role = "admin"
	RoleCustomerService Role = "customer_service"
)

// Roles lists every supported role in a stable order.
func Roles() []Role {
	return []Role{RoleUser, RoleAdmin, RoleCustomerService}
}

// Valid reports whether r is a supported role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleCustomerService:
		return true
	default:
		return false
	}
}

// Key is the short name used for cookie prefixes and JSON envelopes.
func (r Role) Key() string {
	if r == RoleCustomerService {
		return "service"
	}
	return string(r)
}

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts the canonical role name or its short key.
func ParseRole(raw string) (Role, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	case "customer_service", "service", "customer-service":
		return RoleCustomerService, nil
	}
	return "", fmt.Errorf("principal: unknown role %q", raw)
}
