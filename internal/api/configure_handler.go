package api

import (
	"net/http"

	"github.com/phrazzld/reelchain/internal/api/shared"
	"github.com/phrazzld/reelchain/internal/service/credentials"
)

// ConfigureHandler installs API credentials at runtime.
type ConfigureHandler struct {
	configurer Configurer
}

// NewConfigureHandler creates a ConfigureHandler.
func NewConfigureHandler(configurer Configurer) *ConfigureHandler {
	return &ConfigureHandler{configurer: configurer}
}

// Configure handles POST /api/configure. Credentials are verified against
// the upstream services before they replace the current ones.
func (h *ConfigureHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req ConfigureRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	err := h.configurer.Configure(r.Context(), credentials.Credentials{
		GeminiAPIKey:     req.GeminiAPIKey,
		ElevenLabsAPIKey: req.ElevenLabsAPIKey,
		VoiceID:          req.VoiceID,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
