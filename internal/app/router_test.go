package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/authclient"
	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/portal"
	"github.com/tasklane/tasklane/internal/principal"
	"github.com/tasklane/tasklane/internal/retry"
	"github.com/tasklane/tasklane/internal/shared"
)

func TestPortalRouterHeadersAndGuard(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(api.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := authclient.New(api.URL, authclient.WithMarkerPolicy(retry.Policy{MaxAttempts: 1}))
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	router := NewPortalRouter(PortalRouterParams{
		Logger:  logger,
		Config:  &Config{AppEnv: "development"},
		Portal:  portal.NewHandler(portal.Config{Client: client, Logger: logger, Metrics: metrics}),
		Metrics: metrics,
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/service/tickets", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/service/login?redirect=%2Fservice%2Ftickets", rr.Header().Get("Location"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `tasklane_guard_decisions_total{role="customer_service",state="unauthorized"} 1`)
}

type emptyRepo struct{}

func (emptyRepo) FindByIdentifier(context.Context, principal.Role, string) (*auth.Account, error) {
	return nil, shared.ErrNotFound
}

func (emptyRepo) FindByID(context.Context, principal.Role, string) (*auth.Account, error) {
	return nil, shared.ErrNotFound
}

func (emptyRepo) TouchLastLogin(context.Context, string, time.Time) error { return nil }

func (emptyRepo) SetOnline(context.Context, string, bool) error { return nil }

func newAPIRouter(t *testing.T, cfg *Config) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var sessions []*shared.SessionManager
	for _, role := range principal.Roles() {
		sessions = append(sessions, shared.NewSessionManager(redisClient, role.Key(), "secret", time.Hour, false))
	}
	service := auth.NewService(auth.ServiceConfig{
		Repo:   emptyRepo{},
		Codes:  auth.NewVerificationStore(redisClient, shared.NewCodeSigner("codesecret"), 5*time.Minute),
		Logger: logger,
	})
	return NewRouter(RouterParams{
		Logger:   logger,
		Config:   cfg,
		Sessions: sessions,
		AuthHandler: auth.NewHandler(auth.HandlerConfig{
			Logger:    logger,
			Service:   service,
			Sessions:  sessions,
			RateLimit: cfg.AuthRate,
		}),
	})
}

func loginFrom(router http.Handler, remoteAddr string, headers map[string]string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"nobody","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr.Code
}

func TestAuthRateLimitIgnoresForwardedHeaders(t *testing.T) {
	router := newAPIRouter(t, &Config{AppEnv: "development", AuthRate: 2})

	var codes []int
	for i := 0; i < 6; i++ {
		codes = append(codes, loginFrom(router, "203.0.113.9:40000", map[string]string{
			"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i+1),
			"X-Real-IP":       fmt.Sprintf("192.0.2.%d", i+1),
			"True-Client-IP":  fmt.Sprintf("192.0.2.%d", i+100),
		}))
	}
	assert.Equal(t, []int{
		http.StatusUnauthorized, http.StatusUnauthorized,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)

	// A different peer has its own budget.
	assert.Equal(t, http.StatusUnauthorized, loginFrom(router, "203.0.113.10:40000", nil))
}

func TestTrustedProxyKeysOnForwardedAddress(t *testing.T) {
	router := newAPIRouter(t, &Config{AppEnv: "development", AuthRate: 1, TrustProxy: true})

	proxy := "10.0.0.1:5000"
	assert.Equal(t, http.StatusUnauthorized, loginFrom(router, proxy, map[string]string{"X-Forwarded-For": "198.51.100.1"}))
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(router, proxy, map[string]string{"X-Forwarded-For": "198.51.100.1"}))
	assert.Equal(t, http.StatusUnauthorized, loginFrom(router, proxy, map[string]string{"X-Forwarded-For": "198.51.100.2"}))
}
