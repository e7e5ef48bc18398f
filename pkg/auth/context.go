package auth

import (
	"context"
	"errors"
)

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	ID   string
	Type string // PrincipalUser or PrincipalAdmin
}

// IsAdmin reports whether the principal is an admin.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Type == PrincipalAdmin
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches the authenticated principal to the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal.
func PrincipalFromContext(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, errors.New("principal not found in context")
	}
	return p, nil
}
