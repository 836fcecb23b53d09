// Package auth verifies who is calling.
//
// Identity itself comes from an external provider; this package only carries the
// result. Sessions mints HS256 JWTs whose subject is the verified, lower-cased
// email, and only for emails on the configured allow-list. Middleware accepts the
// token from the light_session cookie or an Authorization bearer header, re-checks
// the allow-list, and stores the email in the request context:
//
//	email, ok := auth.IdentityFromContext(r.Context())
package auth
