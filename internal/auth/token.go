// ABOUTME: Session tokens for verified identities, signed as HS256 JWTs
// ABOUTME: Tokens carry the lower-cased email in "sub" and are checked against an allow-list

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrNotAllowed   = errors.New("identity not allowed")
)

const issuer = "light-assistant"

// MinSecretLength is the shortest accepted signing secret, in bytes
const MinSecretLength = 32

// Sessions issues and verifies session tokens for allow-listed emails
type Sessions struct {
	secret  []byte
	ttl     time.Duration
	allowed map[string]struct{}
	now     func() time.Time
}

// NewSessions creates a Sessions. Emails in allowed are matched case-insensitively.
func NewSessions(secret []byte, ttl time.Duration, allowed []string) (*Sessions, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	set := make(map[string]struct{}, len(allowed))
	for _, email := range allowed {
		if e := normalizeEmail(email); e != "" {
			set[e] = struct{}{}
		}
	}
	return &Sessions{secret: secret, ttl: ttl, allowed: set, now: time.Now}, nil
}

// TTL returns how long issued tokens stay valid
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// IsAllowed reports whether email is on the allow-list.
func (s *Sessions) IsAllowed(email string) bool {
	_, ok := s.allowed[normalizeEmail(email)]
	return ok
}

// Issue mints a token for an allow-listed email.
func (s *Sessions) Issue(email string) (string, error) {
	email = normalizeEmail(email)
	if !s.IsAllowed(email) {
		return "", fmt.Errorf("%w: %s", ErrNotAllowed, email)
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates a token and returns its email. An email removed from the
// allow-list after issue is rejected with ErrNotAllowed.
func (s *Sessions) Verify(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	if !s.IsAllowed(claims.Subject) {
		return "", fmt.Errorf("%w: %s", ErrNotAllowed, claims.Subject)
	}
	return claims.Subject, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
