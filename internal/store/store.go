// Package store implements the SQLite-backed record store for projects,
// sessions, messages, and project memory.
//
// The rest of the system never touches SQL directly: each consumer package
// declares the narrow slice of this store it needs as an interface, and
// *Store satisfies all of them. The query surface is deliberately the shape
// a relational product database exposes: point lookup by id, child range
// query ordered by timestamp with limit and direction, partial update.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/knearme/atelier/internal/model"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound is returned when a point lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds record store configuration.
type Config struct {
	DataDir string
}

// DefaultConfig returns the default configuration for the record store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".atelier")}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent record store backed by SQLite.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a new Store with the given configuration. It creates the
// data directory if needed, opens SQLite with WAL mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "atelier.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id                   TEXT PRIMARY KEY,
			title                TEXT,
			project_type         TEXT,
			city                 TEXT,
			state                TEXT,
			materials            TEXT,
			techniques           TEXT,
			status               TEXT NOT NULL DEFAULT 'draft',
			extracted_data       TEXT,
			conversation_summary TEXT,
			images               TEXT,
			created_at           TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			project_id      TEXT NOT NULL,
			message_count   INTEGER NOT NULL DEFAULT 0,
			session_summary TEXT,
			key_facts       TEXT,
			created_at      TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at      TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			parts      TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS project_memory (
			project_id  TEXT PRIMARY KEY,
			facts       TEXT,
			preferences TEXT,
			updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ─── Projects ────────────────────────────────────────────────────────────────

// ProjectParams holds the input for creating or replacing a project row.
type ProjectParams struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	ProjectType string   `json:"project_type,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	Materials   []string `json:"materials,omitempty"`
	Techniques  []string `json:"techniques,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// SaveProject creates a project row, or replaces its core fields if the id
// already exists.
func (s *Store) SaveProject(p ProjectParams) error {
	if p.ID == "" {
		return fmt.Errorf("store: save project: id is required")
	}
	status := p.Status
	if status == "" {
		status = "draft"
	}
	_, err := s.db.Exec(
		`INSERT INTO projects (id, title, project_type, city, state, materials, techniques, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(id) DO UPDATE SET
		     title = excluded.title,
		     project_type = excluded.project_type,
		     city = excluded.city,
		     state = excluded.state,
		     materials = excluded.materials,
		     techniques = excluded.techniques,
		     status = excluded.status,
		     updated_at = datetime('now')`,
		p.ID, nullableString(p.Title), nullableString(p.ProjectType),
		nullableString(p.City), nullableString(p.State),
		marshalStrings(p.Materials), marshalStrings(p.Techniques), status,
	)
	if err != nil {
		return fmt.Errorf("store: save project: %w", err)
	}
	return nil
}

// GetProjectContext loads the context projection of a project row.
// Returns ErrNotFound when the project does not exist.
func (s *Store) GetProjectContext(id string) (*model.ProjectContextData, error) {
	row := s.db.QueryRow(
		`SELECT id, COALESCE(title, ''), COALESCE(project_type, ''), COALESCE(city, ''), COALESCE(state, ''),
		        materials, techniques, status, extracted_data, conversation_summary, images
		 FROM projects WHERE id = ?`, id,
	)
	var (
		p          model.ProjectContextData
		materials  *string
		techniques *string
		extracted  *string
		summary    *string
		images     *string
	)
	err := row.Scan(&p.ID, &p.Title, &p.ProjectType, &p.City, &p.State,
		&materials, &techniques, &p.Status, &extracted, &summary, &images)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: project %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project %q: %w", id, err)
	}
	p.Materials = unmarshalStrings(materials)
	p.Techniques = unmarshalStrings(techniques)
	p.Images = unmarshalStrings(images)
	p.ConversationSummary = summary
	if extracted != nil && *extracted != "" {
		_ = json.Unmarshal([]byte(*extracted), &p.ExtractedData)
	}
	return &p, nil
}

// UpdateProjectParams holds partial update fields for a project. Nil fields
// are left untouched.
type UpdateProjectParams struct {
	Title               *string           `json:"title,omitempty"`
	ProjectType         *string           `json:"project_type,omitempty"`
	City                *string           `json:"city,omitempty"`
	State               *string           `json:"state,omitempty"`
	Materials           []string          `json:"materials,omitempty"`
	Techniques          []string          `json:"techniques,omitempty"`
	Status              *string           `json:"status,omitempty"`
	ExtractedData       map[string]string `json:"extracted_data,omitempty"`
	ConversationSummary *string           `json:"conversation_summary,omitempty"`
}

// UpdateProject applies a partial field set to a project row.
func (s *Store) UpdateProject(id string, p UpdateProjectParams) error {
	sets := []string{"updated_at = datetime('now')"}
	args := []any{}

	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if p.Title != nil {
		set("title", nullableString(*p.Title))
	}
	if p.ProjectType != nil {
		set("project_type", nullableString(*p.ProjectType))
	}
	if p.City != nil {
		set("city", nullableString(*p.City))
	}
	if p.State != nil {
		set("state", nullableString(*p.State))
	}
	if p.Materials != nil {
		set("materials", marshalStrings(p.Materials))
	}
	if p.Techniques != nil {
		set("techniques", marshalStrings(p.Techniques))
	}
	if p.Status != nil {
		set("status", *p.Status)
	}
	if p.ExtractedData != nil {
		raw, err := json.Marshal(p.ExtractedData)
		if err != nil {
			return fmt.Errorf("store: update project: marshal extracted data: %w", err)
		}
		set("extracted_data", string(raw))
	}
	if p.ConversationSummary != nil {
		set("conversation_summary", nullableString(*p.ConversationSummary))
	}

	res, err := s.db.Exec(
		"UPDATE projects SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		append(args, id)...,
	)
	if err != nil {
		return fmt.Errorf("store: update project %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: project %q: %w", id, ErrNotFound)
	}
	return nil
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// CreateSession registers a session for a project. Calling it again with
// the same id is a no-op.
func (s *Store) CreateSession(id, projectID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, project_id) VALUES (?, ?)`,
		id, projectID,
	)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id. Returns ErrNotFound for unknown ids.
func (s *Store) GetSession(id string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, message_count, session_summary, key_facts, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session %q: %w", id, err)
	}
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		sess  model.Session
		facts *string
	)
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.MessageCount,
		&sess.SessionSummary, &facts, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	if facts != nil && *facts != "" {
		_ = json.Unmarshal([]byte(*facts), &sess.KeyFacts)
	}
	return &sess, nil
}

// SaveSessionSummary overwrites a session's summary and key facts.
// Re-saving identical values has no further effect.
func (s *Store) SaveSessionSummary(id string, summary string, facts []model.KeyFact) error {
	var factsJSON *string
	if facts != nil {
		raw, err := json.Marshal(facts)
		if err != nil {
			return fmt.Errorf("store: save session summary: marshal facts: %w", err)
		}
		v := string(raw)
		factsJSON = &v
	}
	res, err := s.db.Exec(
		`UPDATE sessions
		 SET session_summary = ?, key_facts = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		nullableString(summary), factsJSON, id,
	)
	if err != nil {
		return fmt.Errorf("store: save session summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	return nil
}

// RecentSummarizedSessions returns up to limit sessions for a project that
// carry a non-null summary, newest first.
func (s *Store) RecentSummarizedSessions(projectID string, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(
		`SELECT id, project_id, message_count, session_summary, key_facts, created_at, updated_at
		 FROM sessions
		 WHERE project_id = ? AND session_summary IS NOT NULL
		 ORDER BY datetime(updated_at) DESC, rowid DESC
		 LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *sess)
	}
	return results, rows.Err()
}

// ─── Messages ────────────────────────────────────────────────────────────────

// AppendMessage persists one conversational turn and bumps the owning
// session's message count. The session (and a placeholder project row) are
// created on first append so a brand-new conversation needs no prior setup.
// Returns the message id, minted when the caller did not supply one.
func (s *Store) AppendMessage(projectID string, m model.Message) (string, error) {
	if m.SessionID == "" {
		return "", fmt.Errorf("store: append message: session id is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	var partsJSON *string
	if len(m.Parts) > 0 {
		raw, err := json.Marshal(m.Parts)
		if err != nil {
			return "", fmt.Errorf("store: append message: marshal parts: %w", err)
		}
		v := string(raw)
		partsJSON = &v
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("store: append message: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO projects (id) VALUES (?)`, projectID,
	); err != nil {
		return "", fmt.Errorf("store: append message: ensure project: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO sessions (id, project_id) VALUES (?, ?)`,
		m.SessionID, projectID,
	); err != nil {
		return "", fmt.Errorf("store: append message: ensure session: %w", err)
	}

	if m.CreatedAt == "" {
		if _, err := tx.Exec(
			`INSERT INTO messages (id, session_id, role, content, parts) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, string(m.Role), m.Content, partsJSON,
		); err != nil {
			return "", fmt.Errorf("store: append message: insert: %w", err)
		}
	} else {
		if _, err := tx.Exec(
			`INSERT INTO messages (id, session_id, role, content, parts, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, string(m.Role), m.Content, partsJSON, m.CreatedAt,
		); err != nil {
			return "", fmt.Errorf("store: append message: insert: %w", err)
		}
	}

	if _, err := tx.Exec(
		`UPDATE sessions SET message_count = message_count + 1, updated_at = datetime('now') WHERE id = ?`,
		m.SessionID,
	); err != nil {
		return "", fmt.Errorf("store: append message: bump count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: append message: commit: %w", err)
	}
	return m.ID, nil
}

// ListMessages returns a session's messages ordered by created_at with
// insertion order breaking ties. limit <= 0 means no limit. newestFirst
// flips the direction; callers wanting a recent window fetch descending
// and reverse.
func (s *Store) ListMessages(sessionID string, limit int, newestFirst bool) ([]model.Message, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	query := fmt.Sprintf(
		`SELECT id, session_id, role, content, parts, created_at
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY datetime(created_at) %s, rowid %s`, order, order,
	)
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.Message
	for rows.Next() {
		var (
			m     model.Message
			role  string
			parts *string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &parts, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		if parts != nil && *parts != "" {
			_ = json.Unmarshal([]byte(*parts), &m.Parts)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// ─── Project memory ──────────────────────────────────────────────────────────

// GetProjectMemory loads the long-lived memory for a project.
// Returns ErrNotFound when no memory has been written yet.
func (s *Store) GetProjectMemory(projectID string) (*model.ProjectMemory, error) {
	row := s.db.QueryRow(
		`SELECT facts, preferences, updated_at FROM project_memory WHERE project_id = ?`,
		projectID,
	)
	var (
		mem   model.ProjectMemory
		facts *string
		prefs *string
	)
	err := row.Scan(&facts, &prefs, &mem.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: memory for %q: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get memory: %w", err)
	}
	if facts != nil && *facts != "" {
		_ = json.Unmarshal([]byte(*facts), &mem.Facts)
	}
	if prefs != nil && *prefs != "" {
		_ = json.Unmarshal([]byte(*prefs), &mem.Preferences)
	}
	return &mem, nil
}

// SaveProjectMemory writes back the full memory value for a project,
// creating the row on first write.
func (s *Store) SaveProjectMemory(projectID string, mem *model.ProjectMemory) error {
	factsRaw, err := json.Marshal(mem.Facts)
	if err != nil {
		return fmt.Errorf("store: save memory: marshal facts: %w", err)
	}
	prefsRaw, err := json.Marshal(mem.Preferences)
	if err != nil {
		return fmt.Errorf("store: save memory: marshal preferences: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO project_memory (project_id, facts, preferences, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
		     facts = excluded.facts,
		     preferences = excluded.preferences,
		     updated_at = excluded.updated_at`,
		projectID, string(factsRaw), string(prefsRaw), mem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save memory: %w", err)
	}
	return nil
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats holds aggregate record store statistics.
type Stats struct {
	TotalProjects int `json:"total_projects"`
	TotalSessions int `json:"total_sessions"`
	TotalMessages int `json:"total_messages"`
	Summarized    int `json:"summarized_sessions"`
}

// Stats returns aggregate counts across the store.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	_ = s.db.QueryRow("SELECT COUNT(*) FROM projects").Scan(&stats.TotalProjects)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&stats.TotalMessages)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM sessions WHERE session_summary IS NOT NULL").Scan(&stats.Summarized)
	return stats, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalStrings(v []string) *string {
	if len(v) == 0 {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := string(raw)
	return &out
}

func unmarshalStrings(v *string) []string {
	if v == nil || *v == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(*v), &out)
	return out
}

// Now returns the current time formatted for SQLite.
func Now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
