// Package cache implements the local session cache: a second, independent
// persistence path that mirrors an in-progress session so a lost
// connection does not destroy unsent work.
//
// The cache is not authoritative. On reconnect the record store wins for
// everything except draft content that never reached the server. Each
// write runs in its own transaction so any number of sessions can be
// cached without a long-lived handle.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/knearme/atelier/internal/model"
)

// ErrNotFound is returned when no cached session matches.
var ErrNotFound = errors.New("cache: not found")

// Entry is one cached session: the unsent draft plus the latest checkpoint.
type Entry struct {
	SessionID  string                   `json:"session_id"`
	ProjectID  string                   `json:"project_id"`
	Draft      string                   `json:"draft,omitempty"`
	Checkpoint *model.SessionCheckpoint `json:"checkpoint,omitempty"`
	UpdatedAt  string                   `json:"updated_at"`
}

// Cache is the SQLite-backed local session cache.
type Cache struct {
	db *sql.DB
}

// ─── Migrations ──────────────────────────────────────────────────────────────

// Schema changes are an ordered table of version → upgrade function,
// applied in sequence, so future additions stay additive.
type migration struct {
	version int
	up      func(tx *sql.Tx) error
}

var migrations = []migration{
	{
		version: 1,
		up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE sessions (
					session_id TEXT PRIMARY KEY,
					project_id TEXT NOT NULL,
					draft      TEXT,
					checkpoint TEXT,
					updated_at TEXT NOT NULL
				);
				CREATE INDEX idx_cache_project ON sessions(project_id);
				CREATE INDEX idx_cache_updated ON sessions(updated_at DESC);
			`)
			return err
		},
	},
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`,
	); err != nil {
		return err
	}

	var current int
	if err := db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if err := m.up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version) VALUES (?)`, m.version,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", m.version, err)
		}
	}
	return nil
}

// ─── Open / close ────────────────────────────────────────────────────────────

// Open creates or opens the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("cache: pragma: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// ─── Operations ──────────────────────────────────────────────────────────────

// Upsert writes an entry, always re-stamping its last-modified time.
func (c *Cache) Upsert(e Entry) error {
	if e.SessionID == "" {
		return fmt.Errorf("cache: upsert: session id is required")
	}

	var checkpointJSON *string
	if e.Checkpoint != nil {
		raw, err := json.Marshal(e.Checkpoint)
		if err != nil {
			return fmt.Errorf("cache: upsert: marshal checkpoint: %w", err)
		}
		v := string(raw)
		checkpointJSON = &v
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("cache: upsert: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO sessions (session_id, project_id, draft, checkpoint, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		     project_id = excluded.project_id,
		     draft = excluded.draft,
		     checkpoint = excluded.checkpoint,
		     updated_at = excluded.updated_at`,
		e.SessionID, e.ProjectID, e.Draft, checkpointJSON, nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("cache: upsert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: upsert: commit: %w", err)
	}
	return nil
}

// Get returns the cached entry for a session id.
func (c *Cache) Get(sessionID string) (*Entry, error) {
	return c.scanOne(c.db.QueryRow(
		`SELECT session_id, project_id, COALESCE(draft, ''), checkpoint, updated_at
		 FROM sessions WHERE session_id = ?`, sessionID,
	))
}

// GetByProject returns the most recently touched cached session for a
// project.
func (c *Cache) GetByProject(projectID string) (*Entry, error) {
	return c.scanOne(c.db.QueryRow(
		`SELECT session_id, project_id, COALESCE(draft, ''), checkpoint, updated_at
		 FROM sessions WHERE project_id = ?
		 ORDER BY updated_at DESC LIMIT 1`, projectID,
	))
}

// MostRecent returns the most recently touched cached session across all
// projects, for "resume where you left off" prompts on reload.
func (c *Cache) MostRecent() (*Entry, error) {
	return c.scanOne(c.db.QueryRow(
		`SELECT session_id, project_id, COALESCE(draft, ''), checkpoint, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT 1`,
	))
}

// Delete removes one cached session. Deleting an absent session is not an
// error.
func (c *Cache) Delete(sessionID string) error {
	if _, err := c.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

// Clear removes all cached sessions.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}

func (c *Cache) scanOne(row *sql.Row) (*Entry, error) {
	var (
		e          Entry
		checkpoint *string
	)
	err := row.Scan(&e.SessionID, &e.ProjectID, &e.Draft, &checkpoint, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: scan: %w", err)
	}
	if checkpoint != nil && *checkpoint != "" {
		var cp model.SessionCheckpoint
		if err := json.Unmarshal([]byte(*checkpoint), &cp); err == nil {
			e.Checkpoint = &cp
		}
	}
	return &e, nil
}

// nowStamp returns a lexically sortable UTC timestamp with sub-second
// precision, so consecutive upserts order correctly.
func nowStamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05.000000")
}
