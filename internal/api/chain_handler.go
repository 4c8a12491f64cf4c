package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/reelchain/internal/api/shared"
	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/platform/logger"
	"github.com/phrazzld/reelchain/internal/store"
)

// ChainHandler serves chain runs, task results and narration audio.
type ChainHandler struct {
	chains ChainService
	audio  AudioSource
}

// NewChainHandler creates a ChainHandler.
func NewChainHandler(chains ChainService, audio AudioSource) *ChainHandler {
	return &ChainHandler{chains: chains, audio: audio}
}

// CreateChain handles POST /api/chains. The run executes asynchronously.
func (h *ChainHandler) CreateChain(w http.ResponseWriter, r *http.Request) {
	var req CreateChainRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	runID, err := h.chains.StartChain(r.Context(), req.Topic)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	subject, _ := shared.GetSubject(r.Context())
	logger.FromContext(r.Context()).Info("chain run accepted", "run_id", runID, "subject", subject)

	w.Header().Set("Location", "/api/chains/"+runID.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateChainResponse{
		RunID:  runID,
		Status: domain.ChainStatusRunning,
	})
}

// GetChain handles GET /api/chains/{runID}.
func (h *ChainHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	chain, err := h.chains.GetChainStatus(r.Context(), runID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, chain)
}

// GetTask handles GET /api/chains/{runID}/tasks/{taskID}.
func (h *ChainHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	taskID, err := domain.ParseTaskID(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	run, err := h.chains.GetTaskStatus(r.Context(), runID, taskID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskStatusResponse{
		RunID:  runID,
		TaskID: run.TaskID,
		Status: run.Status,
		Result: run.Result,
	})
}

// GetAudio handles GET /api/chains/{runID}/audio.
func (h *ChainHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	audio, err := h.audio.GetAudio(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrAudioNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Audio not found")
			return
		}
		respondWithServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Content-Disposition", `inline; filename="`+runID.String()+`.mp3"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		logger.FromContext(r.Context()).Debug("audio write interrupted", "run_id", runID, "error", err)
	}
}

func runIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid run ID")
		return uuid.Nil, false
	}
	return runID, true
}

func respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	var opts []shared.ResponseOption
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		opts = append(opts, shared.WithKind(kind))
	}
	shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err, opts...)
}
