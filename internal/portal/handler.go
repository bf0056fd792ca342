// Package portal serves the back-office pages that sit behind route guards.
// Every protected request is re-probed against the auth API with the
// browser's own cookies; the portal keeps no session state of its own.
package portal

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/tasklane/tasklane/internal/authclient"
	"github.com/tasklane/tasklane/internal/guard"
	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/platform/httpx"
	"github.com/tasklane/tasklane/internal/principal"
)

// Config collects the dependencies of Handler.
type Config struct {
	Client *authclient.Client
	// UserTimeout bounds the account guard's probe.
	UserTimeout time.Duration
	// Warmup delays the first probe after start-up; zero disables it.
	Warmup  time.Duration
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Handler serves guarded portal pages.
type Handler struct {
	logger  *slog.Logger
	client  *authclient.Client
	admin   *guard.Guard
	service *guard.Guard
	user    *guard.Guard
}

// NewHandler constructs a Handler with one guard per role family.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts := []guard.Option{
		guard.WithClock(clock),
		guard.WithLogger(logger),
		guard.WithObserver(func(role principal.Role, state guard.State) {
			cfg.Metrics.RecordGuardDecision(role.String(), state.String())
		}),
	}
	if cfg.Warmup > 0 {
		opts = append(opts, guard.WithWarmup(guard.NewWarmup(cfg.Warmup, clock)))
	}

	userConfig := guard.UserConfig
	if cfg.UserTimeout > 0 {
		userConfig.Timeout = cfg.UserTimeout
	}
	return &Handler{
		logger:  logger,
		client:  cfg.Client,
		admin:   guard.New(guard.AdminConfig, cfg.Client, opts...),
		service: guard.New(guard.CustomerServiceConfig, cfg.Client, opts...),
		user:    guard.New(userConfig, cfg.Client, opts...),
	}
}

// MountRoutes registers login and protected pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.loginPage(principal.RoleUser))
	h.mountArea(r, "/admin", h.admin, "Admin console")
	h.mountArea(r, "/service", h.service, "Customer service console")
	h.mountArea(r, "/account", h.user, "My account")
}

func (h *Handler) mountArea(r chi.Router, prefix string, g *guard.Guard, title string) {
	r.Route(prefix, func(r chi.Router) {
		if g.Config().LoginPath == prefix+"/login" {
			r.Get("/login", h.loginPage(g.Config().Role))
		}
		r.Group(func(r chi.Router) {
			r.Use(guard.Middleware(g, h.proberFor))
			r.Get("/", h.page(title))
			r.Get("/*", h.page(title))
		})
	})
}

func (h *Handler) proberFor(r *http.Request) guard.Prober {
	return h.client.ForRequest(r)
}

type pageResponse struct {
	Title     string              `json:"title"`
	Path      string              `json:"path"`
	Role      string              `json:"role"`
	Principal principal.Principal `json:"principal"`
}

func (h *Handler) page(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := guard.PrincipalFromContext(r.Context())
		if p == nil {
			// Unreachable behind the guard middleware.
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Not authenticated")
			return
		}
		httpx.JSON(w, http.StatusOK, pageResponse{
			Title:     title,
			Path:      r.URL.Path,
			Role:      p.GetRole().String(),
			Principal: p,
		})
	}
}

type loginResponse struct {
	Role          string `json:"role"`
	LoginEndpoint string `json:"login_endpoint"`
	StepUp        bool   `json:"step_up"`
	Redirect      string `json:"redirect,omitempty"`
}

func (h *Handler) loginPage(role principal.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ep, _ := h.client.Endpoints(role)
		httpx.JSON(w, http.StatusOK, loginResponse{
			Role:          role.String(),
			LoginEndpoint: ep.Login,
			StepUp:        ep.Verify != "",
			Redirect:      SafeRedirect(r.URL.Query().Get("redirect")),
		})
	}
}

// SafeRedirect returns target if it is a same-origin absolute path, "" otherwise.
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return target
}
