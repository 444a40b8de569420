package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"fableroom/internal/game"
)

// SQLite persists session documents in a single-table SQLite database. Change
// notification is in-process: a SQLite file has no push channel, so this
// backend assumes one server process is the writer.
type SQLite struct {
	db  *sql.DB
	hub *hub
}

// OpenSQLite prepares the database at the given path and ensures the schema
// exists.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("ensure db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db, hub: newHub()}, nil
}

// Create inserts the initial document, assigning an id when none is set.
func (st *SQLite) Create(ctx context.Context, s game.Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	_, err = st.db.ExecContext(ctx,
		`INSERT INTO sessions (id, doc, updated_at) VALUES (?, ?, ?)`,
		s.ID, string(doc), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return s.ID, nil
}

// Read returns the latest accepted snapshot.
func (st *SQLite) Read(ctx context.Context, id string) (game.Session, error) {
	var doc string
	err := st.db.QueryRowContext(ctx, `SELECT doc FROM sessions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Session{}, ErrNotFound
	}
	if err != nil {
		return game.Session{}, fmt.Errorf("select session: %w", err)
	}

	var s game.Session
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		return game.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return s, nil
}

// Write replaces the whole document and notifies subscribers.
func (st *SQLite) Write(ctx context.Context, id string, s game.Session) error {
	s.ID = id
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	res, err := st.db.ExecContext(ctx,
		`UPDATE sessions SET doc = ?, updated_at = ? WHERE id = ?`,
		string(doc), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	st.hub.notify(id, s)
	return nil
}

// Subscribe delivers the current snapshot, then one call per accepted write.
func (st *SQLite) Subscribe(ctx context.Context, id string, fn func(game.Session)) (func(), error) {
	s, err := st.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	cancel := st.hub.add(id, fn)
	fn(s)
	return cancel, nil
}

// Close releases database resources.
func (st *SQLite) Close() error {
	return st.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}
