package auth

import "errors"

// Token validation errors.
var (
	// ErrInvalidToken indicates the token is malformed or its signature does not match.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token's iat or nbf lies in the future.
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrWrongTokenType indicates the token was minted for another purpose.
	ErrWrongTokenType = errors.New("wrong authentication token type")

	// ErrMissingToken indicates a token was expected but not provided.
	ErrMissingToken = errors.New("authentication token is missing")
)
