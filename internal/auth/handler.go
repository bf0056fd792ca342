package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/platform/httpx"
	"github.com/tasklane/tasklane/internal/principal"
	"github.com/tasklane/tasklane/internal/rbac"
	"github.com/tasklane/tasklane/internal/shared"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgVerificationFailed = "Invalid or expired verification code"
	msgNotAuthenticated   = "Not authenticated"
	msgChallenge          = "Verification code required"
)

// HandlerConfig collects the dependencies of Handler.
type HandlerConfig struct {
	Logger   *slog.Logger
	Service  *Service
	Sessions []*shared.SessionManager
	Metrics  *observability.Metrics
	// RateLimit caps login, send-code and verify requests per IP per minute.
	RateLimit int
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  map[string]*shared.SessionManager
	metrics   *observability.Metrics
	rbac      rbac.Middleware
	validator *validator.Validate
	rateLimit int
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := make(map[string]*shared.SessionManager, len(cfg.Sessions))
	for _, sm := range cfg.Sessions {
		sessions[sm.Prefix()] = sm
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 10
	}
	return &Handler{
		logger:    logger,
		service:   cfg.Service,
		sessions:  sessions,
		metrics:   cfg.Metrics,
		rbac:      rbac.Middleware{Logger: logger},
		validator: validate,
		rateLimit: limit,
	}
}

// MountRoutes registers the auth API on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	user, admin, service := principal.RoleUser, principal.RoleAdmin, principal.RoleCustomerService

	r.With(h.rbac.RequireRole(user)).Get("/users/me", h.profile(user))
	r.Route("/auth", func(r chi.Router) {
		r.With(h.limited()).Post("/login", h.login(user))
		r.Post("/logout", h.logout(user))

		r.Route("/admin", func(r chi.Router) {
			r.With(h.rbac.RequireRole(admin)).Get("/profile", h.profile(admin))
			r.With(h.limited()).Post("/login", h.login(admin))
			r.Post("/logout", h.logout(admin))
			r.With(h.limited()).Post("/send-verification-code", h.sendCode)
			r.With(h.limited()).Post("/verify-code", h.verifyCode)
		})

		r.Route("/service", func(r chi.Router) {
			r.With(h.rbac.RequireRole(service)).Get("/profile", h.profile(service))
			r.With(h.limited()).Post("/login", h.login(service))
			r.Post("/logout", h.logout(service))
		})
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

type verifyRequest struct {
	AdminID string `json:"admin_id" validate:"required,max=64"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
}

type challengeResponse struct {
	AdminID string `json:"admin_id"`
	Message string `json:"message"`
}

type sendCodeResponse struct {
	AdminID   string `json:"admin_id"`
	ExpiresIn int    `json:"expires_in"`
}

func (h *Handler) limited() func(http.Handler) http.Handler {
	return httprate.Limit(h.rateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "Too many attempts, please wait a minute")
		}),
	)
}

func (h *Handler) login(role principal.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !h.decode(w, r, &req) {
			return
		}
		outcome, err := h.service.Login(r.Context(), role, req.Username, req.Password, clientIP(r))
		if err != nil {
			h.metrics.RecordLogin(role.String(), "failure")
			if errors.Is(err, shared.ErrInvalidCredentials) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", msgInvalidCredentials)
				return
			}
			h.logger.Error("login", slog.String("role", role.String()), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if outcome.Challenge {
			h.metrics.RecordLogin(role.String(), "challenge")
			httpx.JSON(w, http.StatusAccepted, challengeResponse{AdminID: outcome.Account.ID, Message: msgChallenge})
			return
		}
		sess, ok := h.session(w, r, role)
		if !ok {
			return
		}
		sess.BindPrincipal(outcome.Account.ID)
		h.metrics.RecordLogin(role.String(), "success")
		httpx.JSON(w, http.StatusOK, principal.Envelope(outcome.Account.Principal()))
	}
}

func (h *Handler) sendCode(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	adminID, ttl, err := h.service.IssueCode(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		h.metrics.RecordCodeSent("queued")
		httpx.JSON(w, http.StatusOK, sendCodeResponse{AdminID: adminID, ExpiresIn: int(ttl / time.Second)})
	case errors.Is(err, shared.ErrInvalidCredentials):
		h.metrics.RecordCodeSent("failure")
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", msgInvalidCredentials)
	case errors.Is(err, shared.ErrDispatchFailed):
		h.metrics.RecordCodeSent("failure")
		httpx.RespondError(w, fmt.Errorf("%w: could not send the verification code", httpx.ErrUnavailable))
	default:
		h.metrics.RecordCodeSent("failure")
		h.logger.Error("send verification code", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.VerifyCode(r.Context(), req.AdminID, req.Code, clientIP(r))
	if err != nil {
		h.metrics.RecordVerification("failure")
		if errors.Is(err, shared.ErrVerificationFailed) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", msgVerificationFailed)
			return
		}
		h.logger.Error("verify code", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	sess, ok := h.session(w, r, principal.RoleAdmin)
	if !ok {
		return
	}
	sess.BindPrincipal(account.ID)
	h.metrics.RecordVerification("success")
	httpx.JSON(w, http.StatusOK, principal.Envelope(account.Principal()))
}

func (h *Handler) profile(role principal.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.session(w, r, role)
		if !ok {
			return
		}
		account, err := h.service.Profile(r.Context(), role, sess.PrincipalID())
		if err != nil {
			if errors.Is(err, shared.ErrSessionMissing) {
				h.sessions[role.Key()].Destroy(sess)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", msgNotAuthenticated)
				return
			}
			h.logger.Error("load profile", slog.String("role", role.String()), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, account.Principal())
	}
}

func (h *Handler) logout(role principal.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.session(w, r, role)
		if !ok {
			return
		}
		if sess.Authenticated() {
			if err := h.service.Logout(r.Context(), role, sess.PrincipalID()); err != nil {
				h.logger.Warn("logout", slog.String("role", role.String()), slog.Any("error", err))
			}
		}
		h.sessions[role.Key()].Destroy(sess)
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request, role principal.Role) (*shared.Session, bool) {
	sess := shared.SessionFromContext(r.Context(), role.Key())
	if sess == nil || h.sessions[role.Key()] == nil {
		h.logger.Error("session missing from context", slog.String("role", role.String()))
		httpx.RespondError(w, shared.ErrSessionMissing)
		return nil, false
	}
	return sess, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return false
		}
		fields := make([]httpx.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, httpx.FieldError{
				Loc:  []string{"body", fe.Field()},
				Msg:  fieldMessage(fe),
				Type: fe.Tag(),
			})
		}
		httpx.Invalid(w, fields)
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "numeric":
		return fe.Field() + " must contain only digits"
	}
	return fe.Error()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
