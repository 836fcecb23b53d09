// ABOUTME: HTTP middleware that authenticates requests by session cookie or bearer token
// ABOUTME: Also sets and clears the session cookie

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// CookieName is the session cookie
const CookieName = "light_session"

// extractToken returns the session token from the cookie, falling back to an
// Authorization bearer header.
func extractToken(r *http.Request) (string, string) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, ""
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "not authenticated"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware rejects requests without a valid session for an allow-listed
// email and stores the email in the request context.
func Middleware(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractToken(r)
			if errMsg != "" {
				writeError(w, http.StatusUnauthorized, errMsg)
				return
			}

			email, err := sessions.Verify(token)
			switch {
			case errors.Is(err, ErrExpiredToken):
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			case errors.Is(err, ErrNotAllowed):
				writeError(w, http.StatusForbidden, "access denied")
				return
			case err != nil:
				writeError(w, http.StatusUnauthorized, "invalid session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), email)))
		})
	}
}

// SetSessionCookie stores token in an HttpOnly cookie. secure should be true
// when served over TLS.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
