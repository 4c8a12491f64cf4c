package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/orchestrator"
	"github.com/phrazzld/reelchain/internal/service/auth"
	"github.com/phrazzld/reelchain/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"run not found", orchestrator.ErrRunNotFound, http.StatusNotFound},
		{"wrapped task not found", fmt.Errorf("lookup: %w", orchestrator.ErrTaskNotFound), http.StatusNotFound},
		{"audio not found", store.ErrAudioNotFound, http.StatusNotFound},
		{"shutting down", orchestrator.ErrShuttingDown, http.StatusServiceUnavailable},
		{"validation", domain.Errorf(domain.KindValidation, "op", "bad"), http.StatusBadRequest},
		{"exhausted", domain.Errorf(domain.KindResourceExhaustion, "op", "full"), http.StatusServiceUnavailable},
		{"connection", domain.Errorf(domain.KindConnection, "op", "down"), http.StatusServiceUnavailable},
		{"timeout", domain.Errorf(domain.KindTimeout, "op", "slow"), http.StatusGatewayTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"external", domain.Errorf(domain.KindExternalService, "op", "vendor"), http.StatusBadGateway},
		{"configuration", domain.Errorf(domain.KindConfiguration, "op", "missing"), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Chain run not found", GetSafeErrorMessage(orchestrator.ErrRunNotFound))
	assert.Equal(t, "Service is at capacity",
		GetSafeErrorMessage(domain.Errorf(domain.KindResourceExhaustion, "op", "cpu 97%")))
	assert.Equal(t, "Upstream service failed",
		GetSafeErrorMessage(domain.Errorf(domain.KindExternalService, "op", "key AIza leaked")))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(errors.New("internal detail")))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))

	msg := GetSafeErrorMessage(domain.E(domain.KindValidation, "op", errors.New("topic is blank")))
	assert.Equal(t, "Invalid request: topic is blank", msg)
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	v := validator.New()
	err := v.Struct(&CreateChainRequest{})
	require.Error(t, err)
	assert.Equal(t, "Invalid Topic: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
