// ABOUTME: HS256 JWT session tokens for the web admin cookie
// ABOUTME: Issue on password login, verify on every gated request

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Sessions issues and verifies admin session tokens signed with a shared
// secret. There is a single admin identity; the token's value is its
// bounded lifetime, not a principal mapping.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

// NewSessions creates a session signer. secret must be non-empty.
func NewSessions(secret []byte, ttl time.Duration) (*Sessions, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{secret: secret, ttl: ttl}, nil
}

// TTL returns the configured session lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue creates a fresh session token.
func (s *Sessions) Issue() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "admin",
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks a session token's signature and expiry.
func (s *Sessions) Verify(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
