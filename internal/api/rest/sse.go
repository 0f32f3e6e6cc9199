package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reliefops/redzone/internal/logger"
	"github.com/reliefops/redzone/internal/service/feed"
)

// handleStreamZones streams the zone node as server-sent events.
func (s *Server) handleStreamZones(w http.ResponseWriter, r *http.Request) {
	s.streamPath(w, r, feed.ZonesPath)
}

// handleStreamLocation streams one subject's record as server-sent events.
func (s *Server) handleStreamLocation(w http.ResponseWriter, r *http.Request) {
	s.streamPath(w, r, feed.LocationPath(chi.URLParam(r, "subjectId")))
}

// streamPath forwards the store's full-snapshot feed for one path as SSE
// data events. An absent value is the literal "null", mirroring the feed
// contract, and the stream ends when the client disconnects.
func (s *Server) streamPath(w http.ResponseWriter, r *http.Request, path string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")

		return
	}

	sub, err := s.store.Subscribe(r.Context(), path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to subscribe")

		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-sub.Updates():
			if !open {
				return
			}

			if snapshot == nil {
				snapshot = json.RawMessage("null")
			}

			if _, err := fmt.Fprintf(w, "data: %s\n\n", snapshot); err != nil {
				logger.DebugKV(r.Context(), "Stream client gone", "path", path, "error", err)

				return
			}

			flusher.Flush()
		}
	}
}
