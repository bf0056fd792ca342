package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager orchestrates cookie based sessions backed by Redis for one
// role. Every role gets its own cookie prefix so an admin and a customer
// service session can coexist in one browser.
type SessionManager struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	secure bool
	secret []byte
	now    func() time.Time
}

// Session holds per-request session data.
type Session struct {
	ID          string
	principalID string
	previousID  string
	manager     *SessionManager
	isNew       bool
	dirty       bool
	destroyed   bool
}

type sessionPayload struct {
	PrincipalID string `json:"principal_id"`
}

// NewSessionManager constructs a SessionManager. prefix names the cookies,
// e.g. "admin" yields admin_session_id, admin_authenticated and admin_id.
func NewSessionManager(client *redis.Client, prefix string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		secure: secure,
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Load reads the session for request. A missing or expired session yields a
// fresh, unauthenticated one that is only persisted once a principal is bound.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.CookieName())
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			sess := sm.newSession()
			sess.previousID = cookie.Value
			return sess, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	sess.principalID = stored.PrincipalID
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		for _, id := range []string{sess.ID, sess.previousID} {
			if id == "" {
				continue
			}
			if err := sm.client.Del(ctx, sm.redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		}
		sm.expireCookies(w)
		return nil
	}

	if sess.principalID == "" {
		if sess.previousID != "" {
			// Stale cookie pointing at an expired session.
			sm.expireCookies(w)
		}
		return nil
	}

	if sess.previousID != "" && sess.previousID != sess.ID {
		if err := sm.client.Del(ctx, sm.redisKey(sess.previousID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sess.previousID = ""
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sessionPayload{PrincipalID: sess.principalID})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
		sm.writeCookies(w, sess)
	}
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// Prefix returns the cookie prefix, which doubles as the context key.
func (sm *SessionManager) Prefix() string {
	return sm.prefix
}

// CookieName returns the HttpOnly cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.prefix + "_session_id"
}

// MarkerNames returns the script-readable companion cookie names.
func (sm *SessionManager) MarkerNames() (authenticated, id string) {
	return sm.prefix + "_authenticated", sm.prefix + "_id"
}

func (sm *SessionManager) writeCookies(w http.ResponseWriter, sess *Session) {
	expires := sm.now().Add(sm.ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     sm.CookieName(),
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  expires,
	})
	authName, idName := sm.MarkerNames()
	for name, value := range map[string]string{authName: "true", idName: sess.principalID} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
			Expires:  expires,
		})
	}
}

func (sm *SessionManager) expireCookies(w http.ResponseWriter) {
	authName, idName := sm.MarkerNames()
	for _, name := range []string{sm.CookieName(), authName, idName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == sm.CookieName(),
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// BindPrincipal authenticates the session. The session id is rotated so an
// identifier issued before login never carries the authenticated state.
func (s *Session) BindPrincipal(id string) {
	if s.previousID == "" && !s.isNew {
		s.previousID = s.ID
	}
	s.ID = s.manager.generateSessionID()
	s.principalID = id
	s.isNew = true
	s.dirty = true
}

// PrincipalID returns the bound principal ID, or "" for anonymous sessions.
func (s *Session) PrincipalID() string {
	return s.principalID
}

// Authenticated reports whether a principal is bound.
func (s *Session) Authenticated() bool {
	return s != nil && s.principalID != "" && !s.destroyed
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		manager: sm,
		isNew:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return SessionKey(sm.prefix, id)
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(sm.secret) > 0 {
		for i := range b {
			b[i] ^= sm.secret[i%len(sm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
