package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/portal"
	"github.com/tasklane/tasklane/internal/shared"
	"github.com/tasklane/tasklane/jobs"
)

// RouterParams groups dependencies for building the auth API router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Sessions    []*shared.SessionManager
	AuthHandler *auth.Handler
	JobHandler  *jobs.Handler
	Metrics     *observability.Metrics
}

// NewRouter constructs the chi.Router serving the auth API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:            params.Logger,
		Config:            params.Config,
		Sessions:          params.Sessions,
		Metrics:           params.Metrics,
		RequestsPerMinute: 600,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthz)
	r.Route("/api", params.AuthHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

// PortalRouterParams groups dependencies for the guarded portal router.
type PortalRouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Portal  *portal.Handler
	Metrics *observability.Metrics
}

// NewPortalRouter constructs the chi.Router serving guarded portal pages.
func NewPortalRouter(params PortalRouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthz)
	params.Portal.MountRoutes(r)
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
