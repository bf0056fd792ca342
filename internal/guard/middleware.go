package guard

import (
	"log/slog"
	"net/http"
)

// ProberFor builds a prober that speaks for the browser behind r.
type ProberFor func(r *http.Request) Prober

// Middleware applies g to every request. Authorized requests continue with
// the principal in context; everything else is redirected to the login page
// with 303 so the protected URL is replaced rather than resubmitted.
func Middleware(g *Guard, proberFor ProberFor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, p := g.Decide(r.Context(), proberFor(r))
			if state == StateAuthorized {
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
				return
			}
			g.logger.Info("guard redirect",
				slog.String("role", g.config.Role.String()),
				slog.String("path", r.URL.Path))
			http.Redirect(w, r, g.RedirectTarget(r.URL.RequestURI()), http.StatusSeeOther)
		})
	}
}
