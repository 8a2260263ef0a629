package store

import (
	"encoding/json"
	"fmt"

	"github.com/knearme/atelier/internal/model"
)

// ExportData is the full serializable dump of the record store.
type ExportData struct {
	Version    string            `json:"version"`
	ExportedAt string            `json:"exported_at"`
	Projects   []ProjectExport   `json:"projects"`
	Sessions   []model.Session   `json:"sessions"`
	Messages   []model.Message   `json:"messages"`
	Memory     []MemoryExport    `json:"memory"`
}

// ProjectExport is one project row in an export dump.
type ProjectExport struct {
	ID                  string            `json:"id"`
	Title               string            `json:"title,omitempty"`
	ProjectType         string            `json:"project_type,omitempty"`
	City                string            `json:"city,omitempty"`
	State               string            `json:"state,omitempty"`
	Materials           []string          `json:"materials,omitempty"`
	Techniques          []string          `json:"techniques,omitempty"`
	Status              string            `json:"status"`
	ExtractedData       map[string]string `json:"extracted_data,omitempty"`
	ConversationSummary *string           `json:"conversation_summary,omitempty"`
	CreatedAt           string            `json:"created_at"`
	UpdatedAt           string            `json:"updated_at"`
}

// MemoryExport pairs a project id with its memory value.
type MemoryExport struct {
	ProjectID string              `json:"project_id"`
	Memory    model.ProjectMemory `json:"memory"`
}

// ImportResult holds counts of imported records.
type ImportResult struct {
	ProjectsImported int `json:"projects_imported"`
	SessionsImported int `json:"sessions_imported"`
	MessagesImported int `json:"messages_imported"`
	MemoryImported   int `json:"memory_imported"`
}

// Export dumps the entire record store as a serializable struct.
func (s *Store) Export() (*ExportData, error) {
	data := &ExportData{
		Version:    "0.1.0",
		ExportedAt: Now(),
	}

	rows, err := s.db.Query(
		`SELECT id, COALESCE(title, ''), COALESCE(project_type, ''), COALESCE(city, ''), COALESCE(state, ''),
		        materials, techniques, status, extracted_data, conversation_summary, created_at, updated_at
		 FROM projects ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: export projects: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			p          ProjectExport
			materials  *string
			techniques *string
			extracted  *string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.ProjectType, &p.City, &p.State,
			&materials, &techniques, &p.Status, &extracted, &p.ConversationSummary,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Materials = unmarshalStrings(materials)
		p.Techniques = unmarshalStrings(techniques)
		if extracted != nil && *extracted != "" {
			_ = json.Unmarshal([]byte(*extracted), &p.ExtractedData)
		}
		data.Projects = append(data.Projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessRows, err := s.db.Query(
		`SELECT id, project_id, message_count, session_summary, key_facts, created_at, updated_at
		 FROM sessions ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: export sessions: %w", err)
	}
	defer func() { _ = sessRows.Close() }()
	for sessRows.Next() {
		sess, err := scanSession(sessRows)
		if err != nil {
			return nil, err
		}
		data.Sessions = append(data.Sessions, *sess)
	}
	if err := sessRows.Err(); err != nil {
		return nil, err
	}

	msgRows, err := s.db.Query(
		`SELECT id, session_id, role, content, parts, created_at
		 FROM messages ORDER BY datetime(created_at), rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: export messages: %w", err)
	}
	defer func() { _ = msgRows.Close() }()
	for msgRows.Next() {
		var (
			m     model.Message
			role  string
			parts *string
		)
		if err := msgRows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &parts, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		if parts != nil && *parts != "" {
			_ = json.Unmarshal([]byte(*parts), &m.Parts)
		}
		data.Messages = append(data.Messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, err
	}

	memRows, err := s.db.Query(`SELECT project_id, facts, preferences, updated_at FROM project_memory`)
	if err != nil {
		return nil, fmt.Errorf("store: export memory: %w", err)
	}
	defer func() { _ = memRows.Close() }()
	for memRows.Next() {
		var (
			me    MemoryExport
			facts *string
			prefs *string
		)
		if err := memRows.Scan(&me.ProjectID, &facts, &prefs, &me.Memory.UpdatedAt); err != nil {
			return nil, err
		}
		if facts != nil && *facts != "" {
			_ = json.Unmarshal([]byte(*facts), &me.Memory.Facts)
		}
		if prefs != nil && *prefs != "" {
			_ = json.Unmarshal([]byte(*prefs), &me.Memory.Preferences)
		}
		data.Memory = append(data.Memory, me)
	}
	if err := memRows.Err(); err != nil {
		return nil, err
	}

	return data, nil
}

// Import loads exported data into the record store. Existing rows with the
// same id are left untouched.
func (s *Store) Import(data *ExportData) (*ImportResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: import: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result := &ImportResult{}

	for _, p := range data.Projects {
		var extracted *string
		if p.ExtractedData != nil {
			raw, err := json.Marshal(p.ExtractedData)
			if err != nil {
				return nil, fmt.Errorf("store: import project %s: %w", p.ID, err)
			}
			v := string(raw)
			extracted = &v
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO projects (id, title, project_type, city, state, materials, techniques, status, extracted_data, conversation_summary, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, nullableString(p.Title), nullableString(p.ProjectType),
			nullableString(p.City), nullableString(p.State),
			marshalStrings(p.Materials), marshalStrings(p.Techniques),
			p.Status, extracted, p.ConversationSummary, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: import project %s: %w", p.ID, err)
		}
		n, _ := res.RowsAffected()
		result.ProjectsImported += int(n)
	}

	for _, sess := range data.Sessions {
		var facts *string
		if sess.KeyFacts != nil {
			raw, err := json.Marshal(sess.KeyFacts)
			if err != nil {
				return nil, fmt.Errorf("store: import session %s: %w", sess.ID, err)
			}
			v := string(raw)
			facts = &v
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO sessions (id, project_id, message_count, session_summary, key_facts, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.ProjectID, sess.MessageCount, sess.SessionSummary, facts,
			sess.CreatedAt, sess.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: import session %s: %w", sess.ID, err)
		}
		n, _ := res.RowsAffected()
		result.SessionsImported += int(n)
	}

	for _, m := range data.Messages {
		var parts *string
		if len(m.Parts) > 0 {
			raw, err := json.Marshal(m.Parts)
			if err != nil {
				return nil, fmt.Errorf("store: import message %s: %w", m.ID, err)
			}
			v := string(raw)
			parts = &v
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO messages (id, session_id, role, content, parts, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, string(m.Role), m.Content, parts, m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: import message %s: %w", m.ID, err)
		}
		n, _ := res.RowsAffected()
		result.MessagesImported += int(n)
	}

	for _, me := range data.Memory {
		factsRaw, err := json.Marshal(me.Memory.Facts)
		if err != nil {
			return nil, fmt.Errorf("store: import memory %s: %w", me.ProjectID, err)
		}
		prefsRaw, err := json.Marshal(me.Memory.Preferences)
		if err != nil {
			return nil, fmt.Errorf("store: import memory %s: %w", me.ProjectID, err)
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO project_memory (project_id, facts, preferences, updated_at)
			 VALUES (?, ?, ?, ?)`,
			me.ProjectID, string(factsRaw), string(prefsRaw), me.Memory.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: import memory %s: %w", me.ProjectID, err)
		}
		n, _ := res.RowsAffected()
		result.MemoryImported += int(n)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: import: commit: %w", err)
	}
	return result, nil
}
