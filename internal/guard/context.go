package guard

import (
	"context"

	"github.com/tasklane/tasklane/internal/principal"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the authorized principal in ctx.
func ContextWithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the authorized principal from ctx.
func PrincipalFromContext(ctx context.Context) principal.Principal {
	p, _ := ctx.Value(principalContextKey{}).(principal.Principal)
	return p
}
