package auth

import "context"

type ctxKey string

const principalKey ctxKey = "medpractice.principal"

// WithPrincipal stores the resolved principal for HTTP handlers. Core services never read it;
// handlers pass the principal explicitly.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the principal if the auth middleware ran.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID != ""
}
