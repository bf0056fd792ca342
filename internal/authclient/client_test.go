package authclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/tasklane/internal/principal"
	"github.com/tasklane/tasklane/internal/retry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, mux *http.ServeMux, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client, err := New(srv.URL, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return client
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	_, err := New("/api")
	require.Error(t, err)
}

func TestProbeAuthenticated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/admin/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "A1234", "name": "Ada", "is_active": true})
	})
	client := newTestClient(t, mux)

	p, ok := client.Probe(context.Background(), principal.RoleAdmin)
	require.True(t, ok)
	assert.Equal(t, "A1234", p.GetID())
	assert.Equal(t, principal.RoleAdmin, p.GetRole())
}

func TestProbeFailsClosed(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"unauthorized": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		},
		"empty principal": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"name": "ghost"})
		},
		"no content": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/users/me", handler)
			client := newTestClient(t, mux)

			p, ok := client.Probe(context.Background(), principal.RoleUser)
			assert.False(t, ok)
			assert.Nil(t, p)
		})
	}
}

func TestProbeTransportFailureIsUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := New(url, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, ok := client.Probe(context.Background(), principal.RoleUser)
	assert.False(t, ok)
}

func TestProbeHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/me", func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	client := newTestClient(t, mux)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := client.Probe(ctx, principal.RoleUser)
	assert.False(t, ok)
}

func TestProbeIsIdempotent(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/users/me", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if _, err := r.Cookie("user_session_id"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "u-1", "name": "Una"})
	})
	client := newTestClient(t, mux)

	_, first := client.Probe(context.Background(), principal.RoleUser)
	_, second := client.Probe(context.Background(), principal.RoleUser)
	assert.False(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestServiceProbeRetriesMarkersThenProbesAnyway(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/service/profile", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"id": "cs-7", "name": "Kim", "is_online": true})
	})
	clock := clockwork.NewFakeClock()
	client := newTestClient(t, mux, WithMarkerPolicy(retry.Policy{MaxAttempts: 3, Backoff: 300 * time.Millisecond, Clock: clock}))

	type result struct {
		p  principal.Principal
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		p, ok := client.Probe(context.Background(), principal.RoleCustomerService)
		done <- result{p, ok}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		assert.Equal(t, int32(0), hits.Load(), "profile must not be called while waiting for markers")
		clock.Advance(300 * time.Millisecond)
	}

	select {
	case res := <-done:
		require.True(t, res.ok)
		assert.Equal(t, "cs-7", res.p.GetID())
		assert.Equal(t, int32(1), hits.Load())
	case <-ctx.Done():
		t.Fatalf("probe did not complete")
	}
}

func TestServiceProbeSkipsWaitWhenMarkersPresent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/service/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "service_session_id", Value: "s1", Path: "/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: "service_authenticated", Value: "true", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "service_id", Value: "cs-7", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"service": map[string]any{"id": "cs-7", "name": "Kim"}})
	})
	mux.HandleFunc("GET /api/auth/service/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "cs-7", "name": "Kim"})
	})
	// A fake clock that is never advanced would hang the probe if it waited.
	client := newTestClient(t, mux, WithMarkerPolicy(retry.Policy{MaxAttempts: 3, Backoff: time.Hour, Clock: clockwork.NewFakeClock()}))

	res, err := client.Login(context.Background(), principal.RoleCustomerService, "kim", "pw")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.True(t, client.MarkersPresent(principal.RoleCustomerService))

	p, ok := client.Probe(context.Background(), principal.RoleCustomerService)
	require.True(t, ok)
	assert.Equal(t, "cs-7", p.GetID())
}

func TestLoginOutcomes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case body.Username == "A1234" && body.Password == "correct":
			writeJSON(w, http.StatusOK, map[string]any{"admin": map[string]any{"id": "A1234", "name": "Ada"}})
		case body.Username == "A9999" && body.Password == "correct":
			writeJSON(w, http.StatusAccepted, map[string]any{"admin_id": "A9999", "message": "verification required"})
		case body.Username == "weird":
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": 12})
		case body.Username == "nochallenge":
			writeJSON(w, http.StatusAccepted, map[string]any{"message": "verification required"})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid credentials"})
		}
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	res, err := client.Login(ctx, principal.RoleAdmin, "A1234", "correct")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "A1234", res.Principal.GetID())

	res, err = client.Login(ctx, principal.RoleAdmin, "A9999", "correct")
	require.NoError(t, err)
	require.Equal(t, OutcomeChallenge, res.Outcome)
	assert.Equal(t, "A9999", res.PendingID)
	assert.Nil(t, res.Principal)

	res, err = client.Login(ctx, principal.RoleAdmin, "A1234", "wrong")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.Equal(t, "Invalid credentials", res.Reason)
	assert.Equal(t, http.StatusUnauthorized, res.Status)

	res, err = client.Login(ctx, principal.RoleAdmin, "weird", "x")
	require.NoError(t, err)
	assert.Equal(t, FallbackLoginReason, res.Reason)

	res, err = client.Login(ctx, principal.RoleAdmin, "nochallenge", "x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, res.Outcome)
}

func TestLoginTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client, err := New(url, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = client.Login(context.Background(), principal.RoleUser, "u", "p")
	require.ErrorIs(t, err, ErrTransport)
}

func TestStepUpEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/admin/send-verification-code", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"admin_id": "A9999", "expires_in": 300})
	})
	mux.HandleFunc("POST /api/auth/admin/verify-code", func(w http.ResponseWriter, r *http.Request) {
		var body verifyBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Code != "123456" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Invalid or expired verification code"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"admin": map[string]any{"id": body.AdminID, "name": "Ada"}})
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	pending, err := client.SendVerificationCode(ctx, principal.RoleAdmin, "A9999", "correct")
	require.NoError(t, err)
	assert.Equal(t, "A9999", pending)

	_, err = client.VerifyCode(ctx, principal.RoleAdmin, pending, "000000")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Invalid or expired verification code", rejected.Reason)

	p, err := client.VerifyCode(ctx, principal.RoleAdmin, pending, "123456")
	require.NoError(t, err)
	assert.Equal(t, "A9999", p.GetID())

	_, err = client.VerifyCode(ctx, principal.RoleUser, "u", "123456")
	require.ErrorIs(t, err, ErrUnsupported)
	_, err = client.SendVerificationCode(ctx, principal.RoleCustomerService, "u", "p")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestLogoutTreatsUnauthorizedAsDone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("POST /api/auth/admin/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "boom"})
	})
	client := newTestClient(t, mux)

	require.NoError(t, client.Logout(context.Background(), principal.RoleUser))
	err := client.Logout(context.Background(), principal.RoleAdmin)
	assert.Equal(t, "boom", ReasonOf(err, "x"))
}

func TestForRequestForwardsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/admin/profile", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("admin_session_id")
		if err != nil || c.Value != "sess-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "A1", "name": "Ada"})
	})
	client := newTestClient(t, mux)

	incoming := httptest.NewRequest(http.MethodGet, "/admin", nil)
	incoming.AddCookie(&http.Cookie{Name: "admin_session_id", Value: "sess-1"})
	p, ok := client.ForRequest(incoming).Probe(context.Background(), principal.RoleAdmin)
	require.True(t, ok)
	assert.Equal(t, "A1", p.GetID())

	_, ok = client.Probe(context.Background(), principal.RoleAdmin)
	assert.False(t, ok, "the jar client must not see forwarded cookies")
}
