package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tandem-dev/tandem/pkg/protocol"
	"github.com/tandem-dev/tandem/pkg/store"
)

// handleStream replays the session's event log from the start and follows
// live events. The connection closes after the first done event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.manager.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to load session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range sess.Bus().Subscribe(r.Context()) {
		if err := writeSSE(w, flusher, ev); err != nil {
			slog.Debug("SSE write failed", "session_id", id, "error", err)
			return
		}
		if ev.Type == protocol.EventDone {
			return
		}
	}
}

// writeSSE frames one event as "event: <type>" plus a one-line JSON data
// field.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
