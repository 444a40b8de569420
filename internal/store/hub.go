// Package store provides SharedDocumentStore implementations behind the
// game.Store interface: an in-memory map, a SQLite-backed document table and
// a Supabase-backed table. All of them are last-writer-wins whole-document
// stores with per-subscriber, order-preserving change notification.
package store

import (
	"errors"
	"sync"

	"fableroom/internal/game"
)

// ErrNotFound is returned when no document exists for the requested id.
var ErrNotFound = errors.New("session document not found")

// hub fans a written snapshot out to the subscribers of one document. It is
// the in-process half of change notification shared by the memory and sqlite
// backends.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(game.Session)
}

func newHub() *hub {
	return &hub{subs: map[string]map[int]func(game.Session){}}
}

// add registers a callback for a document and returns its cancel func.
// Cancel removes the callback under the same lock notify dispatches under,
// so no delivery happens after cancel returns.
func (h *hub) add(id string, fn func(game.Session)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[id] == nil {
		h.subs[id] = map[int]func(game.Session){}
	}
	key := h.next
	h.next++
	h.subs[id][key] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[id], key)
		if len(h.subs[id]) == 0 {
			delete(h.subs, id)
		}
	}
}

// notify delivers a snapshot to every subscriber of the document. Each
// callback receives its own deep copy, so a subscriber mutating a snapshot
// cannot leak into the store or into other subscribers. Callbacks run under
// the hub lock, so each subscriber sees successive writes in the order they
// were accepted; subscribers must not call back into the store from the
// callback.
func (h *hub) notify(id string, s game.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, fn := range h.subs[id] {
		fn(s.Clone())
	}
}
