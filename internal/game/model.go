// Package game holds the multiplayer turn-synchronization core: the session
// document, the state machine that advances it, and the turn timer. All state
// lives in a shared document store; the machine never keeps a private copy
// across turns.
package game

import (
	"context"
	"strings"
	"time"
)

// DefaultTurnLimit is how long a player has to act before the turn is
// eligible for a skip.
const DefaultTurnLimit = 60 * time.Second

// startLocation is the scene every new session opens in.
const startLocation = "tavern"

// Player is one roster entry. The id is the sole identity; the display name
// is not authoritative.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

// Session is the whole shared document for one game room. Writers always
// replace the entire document; the store's last-writer-wins semantics define
// the canonical sequence of states.
type Session struct {
	ID         string              `json:"id"`
	Roster     []Player            `json:"roster"`
	TurnIndex  int                 `json:"turnIndex"`
	Started    bool                `json:"started"`
	Location   string              `json:"location"`
	History    []string            `json:"history"`
	Inventory  map[string][]string `json:"inventory"`
	Equipped   map[string][]string `json:"equipped"`
	Discovered []string            `json:"discovered"`
	// TurnDeadline is nil while the session waits for players or the timer
	// is disarmed.
	TurnDeadline *time.Time `json:"turnDeadline,omitempty"`
	// Resting is the session-visible banner set when the narrative engine
	// reports a rate limit.
	Resting   bool      `json:"resting,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the shared mutable document service the machine writes through.
// Write replaces the whole document; there are no field-level updates and no
// transactions. Subscribe delivers the current snapshot first, then one
// notification per accepted write from any writer, own writes included.
// The returned cancel func unregisters the callback and stops delivery.
type Store interface {
	Create(ctx context.Context, s Session) (string, error)
	Read(ctx context.Context, id string) (Session, error)
	Write(ctx context.Context, id string, s Session) error
	Subscribe(ctx context.Context, id string, fn func(Session)) (cancel func(), err error)
}

// Clone returns a deep copy of the session. Stores hand these out so no two
// holders of a snapshot share roster, history or item collections: a snapshot
// is immutable at read time and later writes cannot surface in it.
func (s Session) Clone() Session {
	c := s
	c.Roster = append([]Player{}, s.Roster...)
	c.History = append([]string{}, s.History...)
	c.Discovered = append([]string{}, s.Discovered...)
	c.Inventory = cloneItemLists(s.Inventory)
	c.Equipped = cloneItemLists(s.Equipped)
	if s.TurnDeadline != nil {
		d := *s.TurnDeadline
		c.TurnDeadline = &d
	}
	return c
}

func cloneItemLists(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string{}, v...)
	}
	return out
}

// NewSession builds an empty, not-yet-started session.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:         id,
		Roster:     []Player{},
		Location:   startLocation,
		History:    []string{},
		Inventory:  map[string][]string{},
		Equipped:   map[string][]string{},
		Discovered: []string{},
		UpdatedAt:  now,
	}
}

// normalize repairs nil collections after a JSON round trip so the rest of
// the code can index maps without guarding.
func (s *Session) normalize() {
	if s.Roster == nil {
		s.Roster = []Player{}
	}
	if s.History == nil {
		s.History = []string{}
	}
	if s.Inventory == nil {
		s.Inventory = map[string][]string{}
	}
	if s.Equipped == nil {
		s.Equipped = map[string][]string{}
	}
	if s.Discovered == nil {
		s.Discovered = []string{}
	}
}

func (s *Session) playerIndex(playerID string) int {
	for i, p := range s.Roster {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) allReady() bool {
	if len(s.Roster) == 0 {
		return false
	}
	for _, p := range s.Roster {
		if !p.Ready {
			return false
		}
	}
	return true
}

func (s *Session) appendHistory(line string) {
	s.History = append(s.History, line)
}

// recentHistory returns the last n history lines, oldest first.
func (s *Session) recentHistory(n int) []string {
	if len(s.History) <= n {
		return append([]string{}, s.History...)
	}
	return append([]string{}, s.History[len(s.History)-n:]...)
}

// advanceTurn moves to the next roster entry and re-arms the deadline.
func (s *Session) advanceTurn(now time.Time, limit time.Duration) {
	if len(s.Roster) == 0 {
		return
	}
	s.TurnIndex = (s.TurnIndex + 1) % len(s.Roster)
	deadline := now.Add(limit)
	s.TurnDeadline = &deadline
	s.UpdatedAt = now
}

// normalizeItem is the canonical form used for all item comparisons and
// deduplication: trimmed, lowercased.
func normalizeItem(item string) string {
	return strings.ToLower(strings.TrimSpace(item))
}

func containsItem(items []string, item string) bool {
	want := normalizeItem(item)
	for _, have := range items {
		if normalizeItem(have) == want {
			return true
		}
	}
	return false
}

// addItem appends item unless an entry with the same normalized form is
// already present.
func addItem(items []string, item string) []string {
	if strings.TrimSpace(item) == "" || containsItem(items, item) {
		return items
	}
	return append(items, strings.TrimSpace(item))
}

// removeItem deletes the first entry matching item's normalized form and
// reports whether anything was removed.
func removeItem(items []string, item string) ([]string, bool) {
	want := normalizeItem(item)
	for i, have := range items {
		if normalizeItem(have) == want {
			return append(append([]string{}, items[:i]...), items[i+1:]...), true
		}
	}
	return items, false
}
