package webui

import "context"

type identityKey struct{}

// requestState is shared between LoggingMiddleware and the handlers it wraps
// so the request log line can include values set further down the chain.
type requestState struct {
	identity string
}

type requestStateKey struct{}

// WithIdentity returns a context carrying the authenticated caller identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	if state, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		state.identity = identity
	}
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by the auth middleware, or "".
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey{}).(string)
	return identity
}
