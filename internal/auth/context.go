// ABOUTME: Verified identity carried through request handlers
// ABOUTME: Provides WithIdentity/IdentityFromContext for propagating the email via context

package auth

import "context"

type identityKey struct{}

// WithIdentity returns a new context carrying the verified email.
func WithIdentity(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, identityKey{}, email)
}

// IdentityFromContext returns the verified email, or "" and false if the
// request was not authenticated.
func IdentityFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(identityKey{}).(string)
	if !ok || email == "" {
		return "", false
	}
	return email, true
}
