package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleStream exposes the live sample view as server-sent events. Each
// committed change within the caller's office set arrives as one `data:`
// frame holding a full grouped snapshot; slow consumers only ever miss
// intermediate states, never the latest one.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorCode(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support flushing")
		return
	}
	ch, cancel := a.service.Subscribe(r.Context(), p)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(snapshot)
			if err != nil {
				a.logger.WithError(err).Error("encode stream snapshot")
				return
			}
			if _, err := fmt.Fprintf(w, "event: samples\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
