package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fableroom/internal/game"
)

// handleEvents streams authoritative snapshots over Server-Sent Events. The
// store subscription delivers the current state first, then one event per
// accepted write from any writer. A slow consumer drops intermediate
// snapshots rather than blocking the store; the next event carries the
// newest state anyway.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates := make(chan game.Session, 8)
	cancel, err := s.store.Subscribe(r.Context(), sessionID, func(snap game.Session) {
		select {
		case updates <- snap:
		default:
		}
	})
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	defer cancel()
	s.ensureTimer(sessionID)
	s.addSSEClient(sessionID)
	defer s.dropSSEClient(sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			payload, err := json.Marshal(snap)
			if err != nil {
				s.logger.Error("marshal snapshot", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// addSSEClient pins the session's timer: the reaper never stops a timer
// while an event stream is attached.
func (s *Server) addSSEClient(sessionID string) {
	s.mu.Lock()
	s.sseClients[sessionID]++
	s.mu.Unlock()
}

func (s *Server) dropSSEClient(sessionID string) {
	s.mu.Lock()
	s.sseClients[sessionID]--
	if s.sseClients[sessionID] <= 0 {
		delete(s.sseClients, sessionID)
	}
	// Restart the retention window at disconnect time.
	s.timerTouched[sessionID] = time.Now()
	s.mu.Unlock()
}
