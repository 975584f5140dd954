// Package auth issues and verifies the bearer tokens that guard the reporting and management API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Audience is the audience every report token is issued for.
	Audience = "link-tracker-reports"
	// SecurityScheme names the OpenAPI security scheme of token-guarded operations.
	SecurityScheme = "reportToken"
	// HeaderName carries the token; QueryParam is accepted as a fallback.
	HeaderName = "X-Report-Token"
	QueryParam = "token"
)

var (
	// ErrNoSecret is returned when tokens are requested without a configured secret.
	ErrNoSecret = errors.New("report secret is not configured")
	// ErrInvalidToken is returned for missing, malformed, expired or foreign tokens.
	ErrInvalidToken = errors.New("invalid report token")
)

// Tokens signs and verifies HS256 report tokens with a shared secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens creates a token service for secret.
func NewTokens(secret string) (*Tokens, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	return &Tokens{secret: []byte(secret), now: time.Now}, nil
}

// Issue returns a signed token for subject. A zero ttl issues a token that never expires.
func (t *Tokens) Issue(subject string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Audience: jwt.ClaimStrings{Audience},
		IssuedAt: jwt.NewNumericDate(now),
	}

	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign report token: %w", err)
	}

	return signed, nil
}

// Verify checks the token and returns its subject.
func (t *Tokens) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return claims.Subject, nil
}
