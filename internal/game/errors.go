package game

import "errors"

// Rejections surfaced to the acting user before any external call. None of
// them mutate state.
var (
	// ErrNotStarted rejects gameplay actions while the session is still
	// gathering players.
	ErrNotStarted = errors.New("session has not started")
	// ErrNotYourTurn rejects an action from a player who does not hold the
	// current turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrAlreadyStarted rejects joins after the start transition; late
	// joins are unsupported by design.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrPlayerNotFound rejects actions referencing an id absent from the
	// roster.
	ErrPlayerNotFound = errors.New("player not found in session")
)
