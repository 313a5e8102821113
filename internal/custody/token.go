package custody

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"medwaste-backend/internal/apperr"
)

// TokenIssuer signs and verifies the confirmation links handed to plant
// operators who have no account
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. ttl is the confirmation window.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// TTL returns the confirmation window
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a new token for handoffID. Every call yields a distinct token.
func (t *TokenIssuer) Issue(handoffID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(t.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"handoff_id": handoffID,
		"jti":        uuid.New().String(),
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign confirmation token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies a token and returns the handoff it was issued for. An
// expired token still reports its handoff id alongside apperr.ErrTokenExpired.
func (t *TokenIssuer) Parse(tokenString string, now time.Time) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return handoffIDClaim(token), apperr.ErrTokenExpired
		}
		return "", apperr.Validation("token", "invalid confirmation token")
	}
	if !token.Valid {
		return "", apperr.Validation("token", "invalid confirmation token")
	}

	handoffID := handoffIDClaim(token)
	if handoffID == "" {
		return "", apperr.Validation("token", "token is not bound to a handoff")
	}
	return handoffID, nil
}

func handoffIDClaim(token *jwt.Token) string {
	if token == nil {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	id, _ := claims["handoff_id"].(string)
	return id
}
