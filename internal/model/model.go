// Package model holds the plain data types shared by the context, memory,
// and bridge subsystems. No behavior lives here beyond small constructors
// and accessors; everything is a serializable value safe to cross a
// process or network boundary unchanged.
package model

import "time"

// ─── Messages ────────────────────────────────────────────────────────────────

// Role identifies who produced a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind discriminates the segment types inside a message.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolCall   PartKind = "tool_call"
	PartToolResult PartKind = "tool_result"
)

// Part is one typed segment of a message. Exactly the fields for its Kind
// are populated: Text for text segments, ToolName/ToolInput for tool calls,
// ToolName/ToolOutput for tool results.
type Part struct {
	Kind       PartKind `json:"kind"`
	Text       string   `json:"text,omitempty"`
	ToolName   string   `json:"tool_name,omitempty"`
	ToolInput  string   `json:"tool_input,omitempty"`
	ToolOutput string   `json:"tool_output,omitempty"`
}

// Message is one conversational turn. Immutable once written; ordering is
// created_at ascending with insertion order breaking ties.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Parts     []Part `json:"parts,omitempty"`
	CreatedAt string `json:"created_at"`
}

// TextParts concatenates the text segments of the message in order,
// falling back to Content when the message carries no text segment.
func (m Message) TextParts() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Kind != PartText || p.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	if out == "" {
		return m.Content
	}
	return out
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// Session is one continuous conversation thread for one project.
type Session struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	MessageCount   int       `json:"message_count"`
	SessionSummary *string   `json:"session_summary,omitempty"`
	KeyFacts       []KeyFact `json:"key_facts,omitempty"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
}

// ─── Facts & memory ──────────────────────────────────────────────────────────

// FactType classifies a key fact extracted from conversation.
type FactType string

const (
	FactPreference  FactType = "preference"
	FactCorrection  FactType = "correction"
	FactContext     FactType = "context"
	FactInstruction FactType = "instruction"
)

// KeyFact is a short, durable statement extracted from conversation and
// retained beyond the session that produced it. Two facts with identical
// Content are the same fact regardless of type or timestamp.
type KeyFact struct {
	Type      FactType `json:"type"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
	Source    string   `json:"source,omitempty"`
}

// Preferences holds per-project conversational preferences, shallow-merged
// on update with later writes winning per key.
type Preferences struct {
	Tone        string   `json:"tone,omitempty"`
	FocusAreas  []string `json:"focus_areas,omitempty"`
	AvoidTopics []string `json:"avoid_topics,omitempty"`
}

// ProjectMemory is the accumulated, deduplicated fact set for one project
// across all of its sessions. Created lazily on first write; mutated by
// merge operations only.
type ProjectMemory struct {
	Facts       []KeyFact   `json:"facts"`
	Preferences Preferences `json:"preferences"`
	UpdatedAt   string      `json:"updated_at"`
}

// ─── Project context ─────────────────────────────────────────────────────────

// ProjectContextData is a read-mostly snapshot of a project's current field
// values, rebuilt fresh on every context load and never persisted as-is.
type ProjectContextData struct {
	ID                  string            `json:"id"`
	Title               string            `json:"title,omitempty"`
	ProjectType         string            `json:"project_type,omitempty"`
	City                string            `json:"city,omitempty"`
	State               string            `json:"state,omitempty"`
	Materials           []string          `json:"materials,omitempty"`
	Techniques          []string          `json:"techniques,omitempty"`
	Status              string            `json:"status,omitempty"`
	ExtractedData       map[string]string `json:"extracted_data,omitempty"`
	ConversationSummary *string           `json:"conversation_summary,omitempty"`
	Images              []string          `json:"images,omitempty"`
}

// PlaceholderProject returns a minimal snapshot used when the project row
// cannot be loaded: the conversation continues with degraded metadata
// instead of failing.
func PlaceholderProject(id string) *ProjectContextData {
	return &ProjectContextData{ID: id, Status: "draft"}
}

// ─── Checkpoints ─────────────────────────────────────────────────────────────

// Phase is the authoring stage a session was in when checkpointed.
type Phase string

const (
	PhaseGathering  Phase = "gathering"
	PhaseImages     Phase = "images"
	PhaseGenerating Phase = "generating"
	PhaseReview     Phase = "review"
	PhaseReady      Phase = "ready"
)

// SessionCheckpoint snapshots conversation-extracted data and shared UI
// state so a switch between conversational and form authoring never loses
// a field the other modality already populated.
type SessionCheckpoint struct {
	Extracted    map[string]string `json:"extracted"`
	State        map[string]string `json:"state"`
	Phase        Phase             `json:"phase"`
	Timestamp    time.Time         `json:"timestamp"`
	MessageCount int               `json:"message_count"`
}

// ─── Results ─────────────────────────────────────────────────────────────────

// ContextLoadResult is the loader's output for one turn. When LoadedFully
// is true, Messages holds the entire history and Summary is nil; otherwise
// Messages holds at most the recent-message window and Summary carries the
// resolved prior summary when one exists.
type ContextLoadResult struct {
	ProjectData       *ProjectContextData `json:"project_data"`
	Messages          []Message           `json:"messages"`
	Summary           *string             `json:"summary,omitempty"`
	LoadedFully       bool                `json:"loaded_fully"`
	EstimatedTokens   int                 `json:"estimated_tokens"`
	TotalMessageCount int                 `json:"total_message_count"`
}

// CompactionResult is the compactor's output: a natural-language summary,
// the extracted facts (raw strings at this stage), and a rough token
// estimate for the summary.
type CompactionResult struct {
	Summary         string   `json:"summary"`
	KeyFacts        []string `json:"key_facts"`
	EstimatedTokens int      `json:"estimated_tokens"`
}

// SessionContext aggregates prior-session summaries and deduplicated facts
// for priming a fresh session.
type SessionContext struct {
	PreviousSummaries []string       `json:"previous_summaries"`
	KeyFacts          []KeyFact      `json:"key_facts"`
	ProjectMemory     *ProjectMemory `json:"project_memory,omitempty"`
	SessionCount      int            `json:"session_count"`
}
