package generation

import "errors"

// Common errors returned by generation adapters.
var (
	// ErrInvalidResponse is returned when a service reply cannot be used.
	ErrInvalidResponse = errors.New("invalid response from generative service")

	// ErrContentBlocked is returned when a safety filter blocked the reply.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrInvalidConfig is returned when an adapter is built without the
	// settings it needs.
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrInvalidCredentials is returned when a service rejects the
	// configured credentials.
	ErrInvalidCredentials = errors.New("credentials rejected by service")

	// ErrNotConfigured is returned when no client has been configured for a
	// service yet.
	ErrNotConfigured = errors.New("service not configured")
)
