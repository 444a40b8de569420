package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"fableroom/internal/game"
)

// ensureTimer starts the turn timer for a session if this process is not
// already running one, and marks the session active for the retention reaper.
// The timer observes every store write and fires the machine's guarded skip
// on expiry; other processes may race the same skip and the guard makes the
// duplicate a no-op.
func (s *Server) ensureTimer(sessionID string) {
	s.mu.Lock()
	s.timerTouched[sessionID] = time.Now()
	if _, ok := s.timers[sessionID]; ok {
		s.mu.Unlock()
		return
	}
	timer := game.NewTurnTimer(s.cfg.TurnTimeLimit, func(turn int, deadline time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, _, err := s.machine.SkipExpiredTurn(ctx, sessionID, turn, deadline); err != nil {
			s.logger.Error("skip expired turn", slog.String("session", sessionID), slog.String("error", err.Error()))
		}
	})
	s.timers[sessionID] = timer
	s.mu.Unlock()

	cancel, err := s.store.Subscribe(context.Background(), sessionID, timer.Observe)
	if err != nil {
		s.logger.Error("subscribe timer", slog.String("session", sessionID), slog.String("error", err.Error()))
		s.mu.Lock()
		delete(s.timers, sessionID)
		delete(s.timerTouched, sessionID)
		s.mu.Unlock()
		timer.Close()
		return
	}

	s.mu.Lock()
	s.timerCancels[sessionID] = cancel
	s.mu.Unlock()
}

// reapLoop periodically releases timers nobody is watching.
func (s *Server) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.reaperDone:
			return
		case <-ticker.C:
			s.reapIdleTimers(time.Now())
		}
	}
}

// reapIdleTimers stops the countdown goroutine and store subscription of
// every session with no attached event stream and no API activity inside the
// retention window. A later request recreates the timer through ensureTimer,
// so reaping never loses state, only the local countdown.
func (s *Server) reapIdleTimers(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		if s.sseClients[id] > 0 {
			continue
		}
		if now.Sub(s.timerTouched[id]) < s.cfg.TimerRetention {
			continue
		}
		timer.Close()
		if cancel := s.timerCancels[id]; cancel != nil {
			cancel()
		}
		delete(s.timers, id)
		delete(s.timerCancels, id)
		delete(s.timerTouched, id)
	}
}

// handleTimer serves POST /sessions/{id}/timer with {op, seconds}: pause,
// resume, or extend this process's countdown for the session. Timer state is
// local; nothing here writes to the store.
func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requirePlayer(w, r, sessionID); !ok {
		return
	}
	var payload struct {
		Op      string `json:"op"`
		Seconds int    `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.ensureTimer(sessionID)
	s.mu.Lock()
	timer := s.timers[sessionID]
	s.mu.Unlock()
	if timer == nil {
		writeError(w, http.StatusNotFound, "no timer for session")
		return
	}

	switch payload.Op {
	case "pause":
		timer.Pause()
	case "resume":
		timer.Resume()
	case "extend":
		if payload.Seconds <= 0 {
			writeError(w, http.StatusBadRequest, "seconds must be positive")
			return
		}
		timer.Extend(time.Duration(payload.Seconds) * time.Second)
	default:
		writeError(w, http.StatusBadRequest, "unknown timer op")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"remainingSeconds": int(timer.Remaining().Seconds()),
		"paused":           timer.Paused(),
	})
}
