package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/orchestrator"
	"github.com/phrazzld/reelchain/internal/redact"
	"github.com/phrazzld/reelchain/internal/service/auth"
	"github.com/phrazzld/reelchain/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes. Sentinels
// are checked first, then the error kind.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized
	case store.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrShuttingDown):
		return http.StatusServiceUnavailable
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindResourceExhaustion, domain.KindConnection:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err. Validation
// errors carry their redacted cause; everything else gets a fixed message.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, orchestrator.ErrRunNotFound):
		return "Chain run not found"
	case errors.Is(err, orchestrator.ErrTaskNotFound), errors.Is(err, store.ErrTaskResultNotFound):
		return "Task result not found"
	case errors.Is(err, store.ErrAudioNotFound):
		return "Audio not found"
	case store.IsNotFoundError(err):
		return "Not found"
	case errors.Is(err, orchestrator.ErrShuttingDown):
		return "Service is shutting down"
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		var de *domain.Error
		if errors.As(err, &de) && de.Err != nil {
			return "Invalid request: " + redact.Error(de.Err)
		}
		return "Invalid request"
	case domain.KindResourceExhaustion:
		return "Service is at capacity"
	case domain.KindConnection:
		return "Backing store unavailable"
	case domain.KindTimeout:
		return "Upstream service timed out"
	case domain.KindExternalService:
		return "Upstream service failed"
	case domain.KindConfiguration:
		return "Service is misconfigured"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns a validator error into a short message that
// names the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return "Invalid " + fe.Field() + ": " + getValidationTagMessage(fe.Tag())
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "uuid4", "uuid":
		return "invalid identifier"
	default:
		return "validation failed"
	}
}

// respondWithServiceError writes the mapped status and safe message for err.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, MapErrorToStatusCode(err), err)
}
