// Package auth issues and validates the bearer tokens that guard the HTTP API.
package auth

import (
	"context"
	"time"
)

// TokenTypeAccess marks tokens accepted by the API.
const TokenTypeAccess = "access"

// JWTService defines operations for managing bearer tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for subject.
	// A zero lifetime uses the service default.
	GenerateToken(ctx context.Context, subject string, lifetime time.Duration) (string, error)

	// ValidateToken verifies the signature and time claims of an access token
	// and returns its claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of a token.
type Claims struct {
	Subject   string    `json:"sub"`
	TokenType string    `json:"type"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	ID        string    `json:"jti"`
}
