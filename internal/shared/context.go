package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the authenticated user of the current request in context.
func ContextWithSession(ctx context.Context, user *SessionUser) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, user)
}

// SessionFromContext extracts the authenticated user, or nil for anonymous requests.
func SessionFromContext(ctx context.Context) *SessionUser {
	user, _ := ctx.Value(sessionContextKey{}).(*SessionUser)
	return user
}
