package portal_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/authclient"
	"github.com/tasklane/tasklane/internal/observability"
	"github.com/tasklane/tasklane/internal/portal"
	"github.com/tasklane/tasklane/internal/retry"
)

// fakeAPI answers profile probes for whichever session cookies it recognises.
type fakeAPI struct {
	probes atomic.Int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.probes.Add(1)
	var body string
	switch r.URL.Path {
	case "/api/auth/admin/profile":
		if c, err := r.Cookie("admin_session_id"); err == nil && c.Value == "good" {
			body = `{"id":"a-1","username":"root","name":"Root","is_active":true,"is_super_admin":true}`
		}
		if c, err := r.Cookie("admin_session_id"); err == nil && c.Value == "disabled" {
			body = `{"id":"a-2","username":"old","name":"Old","is_active":false}`
		}
	case "/api/auth/service/profile":
		if c, err := r.Cookie("service_session_id"); err == nil && c.Value == "good" {
			body = `{"id":"cs-1","name":"Agent","avg_rating":4.5,"total_ratings":2,"is_online":true}`
		}
	case "/api/users/me":
		if c, err := r.Cookie("user_session_id"); err == nil && c.Value == "good" {
			body = `{"id":"u-1","name":"Una"}`
		}
	}
	if body == "" {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func newPortal(t *testing.T) (*httptest.Server, *fakeAPI, *observability.Metrics) {
	t.Helper()
	api := &fakeAPI{}
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := authclient.New(apiSrv.URL,
		authclient.WithLogger(logger),
		authclient.WithMarkerPolicy(retry.Policy{MaxAttempts: 1}),
	)
	require.NoError(t, err)

	metrics := observability.NewMetrics()
	h := portal.NewHandler(portal.Config{
		Client:      client,
		UserTimeout: 2 * time.Second,
		Logger:      logger,
		Metrics:     metrics,
	})
	r := chi.NewRouter()
	h.MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, api, metrics
}

func noFollow() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func get(t *testing.T, url string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res, err := noFollow().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestAdminPageRendersPrincipal(t *testing.T) {
	srv, _, metrics := newPortal(t)

	res := get(t, srv.URL+"/admin/reports", &http.Cookie{Name: "admin_session_id", Value: "good"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Title     string         `json:"title"`
		Path      string         `json:"path"`
		Role      string         `json:"role"`
		Principal map[string]any `json:"principal"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "/admin/reports", body.Path)
	assert.Equal(t, "admin", body.Role)
	assert.Equal(t, "a-1", body.Principal["id"])

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `tasklane_guard_decisions_total{role="admin",state="authorized"} 1`)
}

func TestUnauthenticatedRedirectsWithReturnPath(t *testing.T) {
	srv, _, _ := newPortal(t)

	res := get(t, srv.URL+"/admin/reports?tab=q3")
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/admin/login?redirect=%2Fadmin%2Freports%3Ftab%3Dq3", res.Header.Get("Location"))
}

func TestInactiveAdminIsRedirected(t *testing.T) {
	srv, _, _ := newPortal(t)

	res := get(t, srv.URL+"/admin/", &http.Cookie{Name: "admin_session_id", Value: "disabled"})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Contains(t, res.Header.Get("Location"), "/admin/login")
}

func TestMarkersAloneGrantNothing(t *testing.T) {
	srv, _, _ := newPortal(t)

	res := get(t, srv.URL+"/service/queue",
		&http.Cookie{Name: "service_authenticated", Value: "true"},
		&http.Cookie{Name: "service_id", Value: "cs-1"},
	)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Contains(t, res.Header.Get("Location"), "/service/login")
}

func TestServiceAndAccountAreas(t *testing.T) {
	srv, _, _ := newPortal(t)

	res := get(t, srv.URL+"/service/queue", &http.Cookie{Name: "service_session_id", Value: "good"})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = get(t, srv.URL+"/account/orders", &http.Cookie{Name: "user_session_id", Value: "good"})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// A session for another role does not open the account area.
	res = get(t, srv.URL+"/account/orders", &http.Cookie{Name: "admin_session_id", Value: "good"})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/login?redirect=%2Faccount%2Forders", res.Header.Get("Location"))
}

func TestLoginPagesArePublic(t *testing.T) {
	srv, api, _ := newPortal(t)

	res := get(t, srv.URL+"/admin/login?redirect=%2Fadmin%2Freports")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "/admin/reports", body["redirect"])
	assert.Equal(t, "/api/auth/admin/login", body["login_endpoint"])
	assert.Equal(t, true, body["step_up"])

	res = get(t, srv.URL+"/login?redirect=https%3A%2F%2Fevil.example")
	require.Equal(t, http.StatusOK, res.StatusCode)
	body = nil
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.NotContains(t, body, "redirect")

	assert.Zero(t, api.probes.Load())
}

func TestSafeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"/admin":               "/admin",
		"/admin?x=1":           "/admin?x=1",
		"//evil.example/x":     "",
		"https://evil.example": "",
		`/\evil.example`:       "",
		"relative":             "",
	}
	for in, want := range cases {
		if got := portal.SafeRedirect(in); got != want {
			t.Fatalf("SafeRedirect(%q) = %q, want %q", in, got, want)
		}
	}
}
