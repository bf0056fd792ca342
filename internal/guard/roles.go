package guard

import (
	"time"

	"github.com/tasklane/tasklane/internal/principal"
)

// DefaultTimeout bounds the generic user guard's probe.
const DefaultTimeout = 10 * time.Second

// RoleConfig is everything that distinguishes one guard family from another.
type RoleConfig struct {
	// Role selects the profile endpoint to probe.
	Role principal.Role
	// LoginPath is where unauthorized visitors are sent.
	LoginPath string
	// Matches filters principals returned by the probe. Nil accepts all.
	Matches func(principal.Principal) bool
	// Timeout races the probe; zero leaves it bounded by the transport only.
	Timeout time.Duration
}

// AdminConfig guards the admin console.
var AdminConfig = RoleConfig{
	Role:      principal.RoleAdmin,
	LoginPath: "/admin/login",
	Matches: func(p principal.Principal) bool {
		admin, ok := p.(*principal.Admin)
		return ok && admin.IsActive
	},
}

// CustomerServiceConfig guards the customer service console.
var CustomerServiceConfig = RoleConfig{
	Role:      principal.RoleCustomerService,
	LoginPath: "/service/login",
	Matches: func(p principal.Principal) bool {
		_, ok := p.(*principal.CustomerServiceAgent)
		return ok
	},
}

// UserConfig guards regular account pages.
var UserConfig = RoleConfig{
	Role:      principal.RoleUser,
	LoginPath: "/login",
	Matches: func(p principal.Principal) bool {
		_, ok := p.(*principal.User)
		return ok
	},
	Timeout: DefaultTimeout,
}

// ConfigFor returns the preset for role.
func ConfigFor(role principal.Role) RoleConfig {
	switch role {
	case principal.RoleAdmin:
		return AdminConfig
	case principal.RoleCustomerService:
		return CustomerServiceConfig
	default:
		return UserConfig
	}
}
