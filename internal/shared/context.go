package shared

import "context"

type sessionContextKey struct{}

type sessionSet map[string]*Session

// ContextWithSession stores the session in context under its manager prefix.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	if sess == nil || sess.manager == nil {
		return ctx
	}
	current, _ := ctx.Value(sessionContextKey{}).(sessionSet)
	next := make(sessionSet, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[sess.manager.prefix] = sess
	return context.WithValue(ctx, sessionContextKey{}, next)
}

// SessionFromContext extracts the session stored for prefix.
func SessionFromContext(ctx context.Context, prefix string) *Session {
	set, _ := ctx.Value(sessionContextKey{}).(sessionSet)
	return set[prefix]
}
