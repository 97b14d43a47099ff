// Package auth issues and verifies session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parley/internal/core"
	"parley/internal/domain"
)

type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 15 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

type claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Issue mints a session token for uid valid until now+ttl.
func (m *Manager) Issue(now time.Time, uid domain.UserID) (string, error) {
	c := claims{
		UserID: string(uid),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

// TTL is the session lifetime, exposed so the HTTP layer can align the
// cookie max-age with the token expiry.
func (m *Manager) TTL() time.Duration { return m.ttl }

// VerifyAt checks the token signature and registered claims against a
// supplied clock.
func (m *Manager) VerifyAt(token string, now time.Time) (domain.UserID, error) {
	var c claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %s", core.ErrUnauthorized, err)
	}
	if m.issuer != "" && c.Issuer != m.issuer {
		return "", fmt.Errorf("%w: issuer mismatch", core.ErrUnauthorized)
	}
	if c.UserID == "" {
		return "", fmt.Errorf("%w: uid missing", core.ErrUnauthorized)
	}
	return domain.UserID(c.UserID), nil
}

// VerifySession implements core.SessionAuthenticator.
func (m *Manager) VerifySession(token string) (domain.UserID, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", core.ErrUnauthorized)
	}
	return m.VerifyAt(token, time.Now())
}

var _ core.SessionAuthenticator = (*Manager)(nil)
