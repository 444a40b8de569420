package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// grant binds a bearer token to one player in one session. Tokens are minted
// at join time and held in memory; a restart invalidates them, which only
// forces a re-join.
type grant struct {
	SessionID string
	PlayerID  string
}

func (s *Server) grantToken(sessionID, playerID string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.grants[token] = grant{SessionID: sessionID, PlayerID: playerID}
	s.mu.Unlock()
	return token
}

// requirePlayer resolves the request's bearer token to a player id for the
// given session. It writes the error response itself when the token is
// missing, unknown, or scoped to another session.
func (s *Server) requirePlayer(w http.ResponseWriter, r *http.Request, sessionID string) (string, bool) {
	token := parseToken(r.Header.Get("Authorization"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return "", false
	}

	s.mu.Lock()
	g, ok := s.grants[token]
	s.mu.Unlock()
	if !ok || g.SessionID != sessionID {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return "", false
	}
	return g.PlayerID, true
}

func parseToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return header
}
