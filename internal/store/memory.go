package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"fableroom/internal/game"
)

// Memory is an in-process document store. It backs tests and single-node
// deployments where durability does not matter.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]game.Session
	hub  *hub
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: map[string]game.Session{},
		hub:  newHub(),
	}
}

// Create stores the initial document, assigning an id when none is set.
func (m *Memory) Create(ctx context.Context, s game.Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.mu.Lock()
	m.docs[s.ID] = s.Clone()
	m.mu.Unlock()
	return s.ID, nil
}

// Read returns the latest accepted snapshot as a detached deep copy: the
// caller may mutate it freely, and later writes never surface in it.
func (m *Memory) Read(ctx context.Context, id string) (game.Session, error) {
	m.mu.RLock()
	s, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return game.Session{}, ErrNotFound
	}
	return s.Clone(), nil
}

// Write replaces the whole document (last writer wins) and notifies every
// subscriber, the writer's own subscription included. The stored document is
// a deep copy, so the caller keeps no live reference into the store.
func (m *Memory) Write(ctx context.Context, id string, s game.Session) error {
	m.mu.Lock()
	if _, ok := m.docs[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	s.ID = id
	c := s.Clone()
	m.docs[id] = c
	m.mu.Unlock()

	m.hub.notify(id, c)
	return nil
}

// Subscribe registers fn for the document's change feed. The current
// snapshot is delivered before Subscribe returns, then one call per accepted
// write until cancel.
func (m *Memory) Subscribe(ctx context.Context, id string, fn func(game.Session)) (func(), error) {
	s, err := m.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	cancel := m.hub.add(id, fn)
	fn(s)
	return cancel, nil
}
