package authclient

import "github.com/tasklane/tasklane/internal/principal"

// Endpoints lists the API paths for one role, relative to the base URL.
// Empty paths mark operations the role does not support.
type Endpoints struct {
	Profile  string
	Login    string
	Logout   string
	SendCode string
	Verify   string
	// MarkerCheck enables the best-effort marker cookie wait before probing.
	MarkerCheck bool
}

// DefaultEndpoints returns the standard API surface for role.
func DefaultEndpoints(role principal.Role) Endpoints {
	switch role {
	case principal.RoleAdmin:
		return Endpoints{
			Profile:  "/api/auth/admin/profile",
			Login:    "/api/auth/admin/login",
			Logout:   "/api/auth/admin/logout",
			SendCode: "/api/auth/admin/send-verification-code",
			Verify:   "/api/auth/admin/verify-code",
		}
	case principal.RoleCustomerService:
		return Endpoints{
			Profile:     "/api/auth/service/profile",
			Login:       "/api/auth/service/login",
			Logout:      "/api/auth/service/logout",
			MarkerCheck: true,
		}
	default:
		return Endpoints{
			Profile: "/api/users/me",
			Login:   "/api/auth/login",
			Logout:  "/api/auth/logout",
		}
	}
}

// MarkerCookieNames returns the readable companion cookies set for role.
func MarkerCookieNames(role principal.Role) (authenticated, id string) {
	return role.Key() + "_authenticated", role.Key() + "_id"
}

// SessionCookieName returns the HttpOnly session cookie name for role.
func SessionCookieName(role principal.Role) string {
	return role.Key() + "_session_id"
}
