package api

import (
	"context"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the authenticated caller taken from the access token
type Principal struct {
	UserID string
	Role   string
}

// PrincipalFromContext extracts the caller from context
func PrincipalFromContext(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// ContextWithPrincipal adds the caller to context
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
