package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	supa "github.com/supabase-community/supabase-go"

	"fableroom/internal/game"
)

const defaultPollInterval = 2 * time.Second

// Supabase stores session documents in a hosted Postgres table through the
// Supabase REST API. Each row holds the whole document as JSON; writes are
// whole-row replaces, so the table inherits last-writer-wins semantics.
//
// Change notification combines an immediate in-process echo for this
// process's own writes with interval polling for remote writers. Rapid
// remote writes inside one poll interval coalesce to the newest snapshot,
// which is harmless under last-writer-wins.
//
// The postgrest client exposes no context-aware call variants, so the ctx
// parameters on Create, Read and Write satisfy the Store interface but do
// not cancel the underlying HTTP requests.
type Supabase struct {
	client *supa.Client
	table  string
	poll   time.Duration
	hub    *hub
}

// sessionRow matches the sessions table: id, document payload, and the
// writer's timestamp used for change detection.
type sessionRow struct {
	ID        string       `json:"id"`
	Doc       game.Session `json:"doc"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewSupabase connects to the project's REST endpoint.
func NewSupabase(url, key, table string, poll time.Duration) (*Supabase, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to supabase: %w", err)
	}
	if table == "" {
		table = "sessions"
	}
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Supabase{client: client, table: table, poll: poll, hub: newHub()}, nil
}

// Create inserts the initial document, assigning an id when none is set.
func (st *Supabase) Create(ctx context.Context, s game.Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := sessionRow{ID: s.ID, Doc: s, UpdatedAt: time.Now().UTC()}

	var inserted []sessionRow
	if _, err := st.client.From(st.table).Insert(row, false, "", "", "").ExecuteTo(&inserted); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	if len(inserted) == 0 {
		return "", fmt.Errorf("insert session: no row returned")
	}
	return s.ID, nil
}

// Read returns the latest accepted snapshot.
func (st *Supabase) Read(ctx context.Context, id string) (game.Session, error) {
	var rows []sessionRow
	if _, err := st.client.From(st.table).Select("*", "exact", false).Eq("id", id).ExecuteTo(&rows); err != nil {
		return game.Session{}, fmt.Errorf("select session: %w", err)
	}
	if len(rows) == 0 {
		return game.Session{}, ErrNotFound
	}
	return rows[0].Doc, nil
}

// Write replaces the whole document and echoes it to local subscribers.
// Remote subscribers pick it up on their next poll.
func (st *Supabase) Write(ctx context.Context, id string, s game.Session) error {
	s.ID = id
	row := sessionRow{ID: id, Doc: s, UpdatedAt: time.Now().UTC()}

	var updated []sessionRow
	if _, err := st.client.From(st.table).Update(row, "", "").Eq("id", id).ExecuteTo(&updated); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if len(updated) == 0 {
		return ErrNotFound
	}

	st.hub.notify(id, s)
	return nil
}

// Subscribe delivers the current snapshot, then every newer snapshot the
// local hub or the poller observes. Staleness is judged by the document's
// UpdatedAt, which deduplicates the echo against the poll.
func (st *Supabase) Subscribe(ctx context.Context, id string, fn func(game.Session)) (func(), error) {
	s, err := st.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	sub := &supaSub{fn: fn}
	sub.deliver(s)

	cancelHub := st.hub.add(id, sub.deliver)
	done := make(chan struct{})
	go st.pollLoop(id, sub, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			cancelHub()
			sub.stop()
		})
	}, nil
}

func (st *Supabase) pollLoop(id string, sub *supaSub, done chan struct{}) {
	ticker := time.NewTicker(st.poll)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), st.poll)
			s, err := st.Read(ctx, id)
			cancel()
			if err != nil {
				continue
			}
			sub.deliver(s)
		}
	}
}

// supaSub suppresses duplicate and stale deliveries for one subscription.
type supaSub struct {
	mu      sync.Mutex
	stopped bool
	seen    bool
	last    time.Time
	fn      func(game.Session)
}

func (s *supaSub) deliver(snap game.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.seen && !snap.UpdatedAt.After(s.last) {
		return
	}
	s.seen = true
	s.last = snap.UpdatedAt
	s.fn(snap)
}

func (s *supaSub) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}
