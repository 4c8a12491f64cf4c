package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/phrazzld/reelchain/internal/api/shared"
	"github.com/phrazzld/reelchain/internal/domain"
	"github.com/phrazzld/reelchain/internal/eventlog"
	"github.com/phrazzld/reelchain/internal/platform/logger"
)

// EventsHandler streams a run's event log as server-sent events.
type EventsHandler struct {
	chains ChainService
	events EventSource
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(chains ChainService, events EventSource) *EventsHandler {
	return &EventsHandler{chains: chains, events: events}
}

// Stream handles GET /api/chains/{runID}/events. The stream resumes after the
// cursor given by the "cursor" query parameter or the Last-Event-ID header,
// and closes once the chain's final status has been sent.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	cursor, err := parseCursor(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid cursor")
		return
	}
	if _, err := h.chains.GetChainStatus(ctx, runID); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Warn("event stream flush unsupported", "error", err)
		return
	}

	log.Debug("event stream opened", "run_id", runID, "cursor", cursor)
	for {
		entries, err := h.events.Poll(ctx, runID, cursor)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("event stream poll failed", "run_id", runID, "error", err)
			}
			return
		}
		for _, e := range entries {
			if err := writeEvent(w, e); err != nil {
				log.Debug("event stream closed by client", "run_id", runID, "error", err)
				return
			}
			if !e.IsHeartbeat() {
				cursor = e.SequenceID
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
		if finished(entries) {
			log.Debug("event stream complete", "run_id", runID, "cursor", cursor)
			return
		}
	}
}

func parseCursor(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func writeEvent(w http.ResponseWriter, e eventlog.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if e.IsHeartbeat() {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.SequenceID, e.Kind, data)
	return err
}

func finished(entries []eventlog.Entry) bool {
	for _, e := range entries {
		if e.Kind == eventlog.KindChain && domain.ChainStatus(e.Status).IsFinal() {
			return true
		}
	}
	return false
}

