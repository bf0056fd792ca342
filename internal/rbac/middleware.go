package rbac

import (
	"log/slog"
	"net/http"

	"github.com/tasklane/tasklane/internal/platform/httpx"
	"github.com/tasklane/tasklane/internal/principal"
	"github.com/tasklane/tasklane/internal/shared"
)

// Middleware wires session-based authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireRole ensures the request carries an authenticated session for at
// least one of roles. Sessions of other roles never satisfy the check.
func (m Middleware) RequireRole(roles ...principal.Role) func(http.Handler) http.Handler {
	normalized := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := CurrentRole(r, normalized...); ok {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Debug("rbac require role", slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Not authenticated")
		})
	}
}

// CurrentRole returns the first role in roles with an authenticated session.
func CurrentRole(r *http.Request, roles ...principal.Role) (principal.Role, bool) {
	for _, role := range roles {
		if sess := shared.SessionFromContext(r.Context(), role.Key()); sess.Authenticated() {
			return role, true
		}
	}
	return "", false
}

func normalizeRoles(roles []principal.Role) []principal.Role {
	seen := make(map[principal.Role]struct{}, len(roles))
	normalized := make([]principal.Role, 0, len(roles))
	for _, role := range roles {
		if !role.Valid() {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
