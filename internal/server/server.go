// Package server exposes the session API over HTTP: room creation, joins,
// readiness, action submission, timer controls and an SSE change feed of
// authoritative snapshots.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"fableroom/internal/game"
	"fableroom/internal/store"
)

// Server wraps the HTTP handlers around the session state machine.
type Server struct {
	cfg             Config
	logger          *slog.Logger
	mux             *http.ServeMux
	machine         *game.Machine
	store           game.Store
	allowedOrigins  []string
	allowAllOrigins bool

	mu           sync.Mutex
	grants       map[string]grant
	timers       map[string]*game.TurnTimer
	timerCancels map[string]func()
	timerTouched map[string]time.Time
	sseClients   map[string]int

	reaperDone chan struct{}
	closeOnce  sync.Once
}

// New constructs a Server with routes and middleware configured. The store
// and machine are injected; the server owns no implicit singletons.
func New(cfg Config, machine *game.Machine, st game.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TimerRetention <= 0 {
		cfg.TimerRetention = 30 * time.Minute
	}
	srv := &Server{
		cfg:            cfg,
		logger:         logger,
		mux:            http.NewServeMux(),
		machine:        machine,
		store:          st,
		allowedOrigins: cfg.AllowedOrigins,
		grants:         make(map[string]grant),
		timers:         make(map[string]*game.TurnTimer),
		timerCancels:   make(map[string]func()),
		timerTouched:   make(map[string]time.Time),
		sseClients:     make(map[string]int),
		reaperDone:     make(chan struct{}),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			srv.allowAllOrigins = true
		}
	}

	srv.routes()
	go srv.reapLoop()
	return srv
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := ":" + s.cfg.Port
	s.logger.Info("starting server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Router())
}

// Router returns the configured handler chain.
func (s *Server) Router() http.Handler {
	return s.withCORS(s.loggingMiddleware(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/sessions", s.handleSessions)
	s.mux.HandleFunc("/sessions/", s.handleSession)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", rw.status), slog.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Flush lets SSE handlers stream through the wrapped writer.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleSessions serves POST /sessions: room creation.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, err := s.machine.Create(r.Context())
	if err != nil {
		s.logger.Error("create session", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to create session")
		return
	}
	s.ensureTimer(session.ID)
	writeJSON(w, http.StatusCreated, session)
}

// handleSession routes /sessions/{id}[/{op}].
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	parts := strings.Split(trimmed, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleSnapshot(w, r, sessionID)
		return
	}

	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}

	switch parts[1] {
	case "join":
		s.handleJoin(w, r, sessionID)
	case "ready":
		s.handleReady(w, r, sessionID)
	case "action":
		s.handleAction(w, r, sessionID)
	case "timer":
		s.handleTimer(w, r, sessionID)
	case "events":
		s.handleEvents(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.store.Read(r.Context(), sessionID)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	s.ensureTimer(sessionID)
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	session, player, err := s.machine.Join(r.Context(), sessionID, payload.Name)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	token := s.grantToken(sessionID, player.ID)
	s.ensureTimer(sessionID)

	writeJSON(w, http.StatusOK, map[string]any{
		"playerId": player.ID,
		"token":    token,
		"session":  session,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	playerID, ok := s.requirePlayer(w, r, sessionID)
	if !ok {
		return
	}
	var payload struct {
		Ready bool `json:"ready"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	session, err := s.machine.SetReady(r.Context(), sessionID, playerID, payload.Ready)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	s.ensureTimer(sessionID)
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	playerID, ok := s.requirePlayer(w, r, sessionID)
	if !ok {
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Text) == "" {
		writeError(w, http.StatusBadRequest, "action text is required")
		return
	}

	session, err := s.machine.ApplyAction(r.Context(), sessionID, playerID, payload.Text)
	if err != nil {
		s.writeGameError(w, err)
		return
	}
	s.ensureTimer(sessionID)
	writeJSON(w, http.StatusOK, session)
}

// writeGameError maps core errors onto HTTP statuses. Turn rejections are
// conflicts surfaced inline, missing documents and players are 404s, and
// anything else is a store-side failure the client cannot fix.
func (s *Server) writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrNotStarted),
		errors.Is(err, game.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrPlayerNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("session operation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "shared store unavailable")
	}
}

// Close stops the reaper, the per-session timers and their store
// subscriptions.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.reaperDone) })
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Close()
		if cancel := s.timerCancels[id]; cancel != nil {
			cancel()
		}
	}
	s.timers = make(map[string]*game.TurnTimer)
	s.timerCancels = make(map[string]func())
	s.timerTouched = make(map[string]time.Time)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
