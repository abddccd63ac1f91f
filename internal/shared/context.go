package shared

import "context"

// Identity is the trusted tenant and acting user resolved by the gateway.
type Identity struct {
	TenantID string
	UserID   string
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.TenantID == "" {
		return Identity{}, false
	}
	return id, true
}
