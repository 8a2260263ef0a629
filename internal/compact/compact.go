// Package compact turns a full conversation transcript into a short
// natural-language summary plus a list of durable facts, via one
// text-generation call.
//
// Compaction never fails outward: a generation error or unparseable
// response degrades to a deterministic fallback summary so the caller
// always receives a usable result.
package compact

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/knearme/atelier/internal/llm"
	"github.com/knearme/atelier/internal/model"
)

// SessionStore is the slice of the record store used by the coarse
// background compaction check.
type SessionStore interface {
	GetSession(id string) (*model.Session, error)
}

// Config holds compaction thresholds.
type Config struct {
	// CompactionThreshold is the message count beyond which an
	// unsummarized session is flagged by NeedsCompaction.
	CompactionThreshold int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{CompactionThreshold: 50}
}

// Compactor produces summaries and extracted facts from transcripts.
type Compactor struct {
	gen      llm.Generator
	sessions SessionStore
	cfg      Config
}

// New creates a Compactor. sessions may be nil when NeedsCompaction is not
// used.
func New(gen llm.Generator, sessions SessionStore, cfg Config) *Compactor {
	if cfg.CompactionThreshold <= 0 {
		cfg = DefaultConfig()
	}
	return &Compactor{gen: gen, sessions: sessions, cfg: cfg}
}

// ─── Compaction ──────────────────────────────────────────────────────────────

// compactionResponse is the JSON shape the summarizer is asked to emit.
type compactionResponse struct {
	Summary  string   `json:"summary"`
	KeyFacts []string `json:"keyFacts"`
}

// CompactConversation summarizes a transcript against the current project
// context. It never returns an error: generation failures and malformed
// output degrade to a fallback summary with an empty fact list.
func (c *Compactor) CompactConversation(ctx context.Context, messages []model.Message, project *model.ProjectContextData) *model.CompactionResult {
	prompt := buildPrompt(messages, project)

	raw, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		log.Printf("compact: generation failed, using fallback summary: %v", err)
		return fallbackResult(messages, project)
	}

	summary, facts := parseResponse(raw)
	if summary == "" {
		return fallbackResult(messages, project)
	}

	return &model.CompactionResult{
		Summary:         summary,
		KeyFacts:        facts,
		EstimatedTokens: estimateSummaryTokens(summary),
	}
}

// NeedsCompaction is the coarse check for background triggers: true iff the
// session has grown past the threshold and has no summary yet. Cheaper than
// the loader's per-turn budget arithmetic.
func (c *Compactor) NeedsCompaction(sessionID string) (bool, error) {
	sess, err := c.sessions.GetSession(sessionID)
	if err != nil {
		return false, fmt.Errorf("compact: needs compaction: %w", err)
	}
	if sess.SessionSummary != nil && *sess.SessionSummary != "" {
		return false, nil
	}
	return sess.MessageCount > c.cfg.CompactionThreshold, nil
}

// ─── Prompt assembly ─────────────────────────────────────────────────────────

func buildPrompt(messages []model.Message, project *model.ProjectContextData) string {
	var b strings.Builder

	b.WriteString("You are summarizing a conversation between a contractor and an assistant ")
	b.WriteString("helping them document a project.\n\n")

	b.WriteString("Project context:\n")
	b.WriteString(renderProjectBlock(project))
	b.WriteString("\nConversation:\n")
	b.WriteString(RenderTranscript(messages))

	b.WriteString("\n\nRespond with a JSON object of the form ")
	b.WriteString(`{"summary": "...", "keyFacts": ["..."]}. `)
	b.WriteString("The summary is 2-4 paragraphs covering what was discussed and decided. ")
	b.WriteString("keyFacts is an array of short durable statements worth remembering in ")
	b.WriteString("future sessions (preferences, corrections, project details).")

	return b.String()
}

// renderProjectBlock formats the grounding block of project fields.
func renderProjectBlock(project *model.ProjectContextData) string {
	if project == nil {
		return "- (no project data)\n"
	}
	var b strings.Builder
	writeField := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, v)
		}
	}
	writeField("Type", project.ProjectType)
	writeField("Location", joinLocation(project.City, project.State))
	writeField("Title", project.Title)
	writeField("Status", project.Status)
	if b.Len() == 0 {
		return "- (no project data)\n"
	}
	return b.String()
}

func joinLocation(city, state string) string {
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	default:
		return state
	}
}

// RenderTranscript renders messages as alternating "User:"/"Assistant:"
// lines using only their text segments. Tool calls and tool results are
// excluded; they are not meaningful to the summarizer without execution
// context.
func RenderTranscript(messages []model.Message) string {
	var b strings.Builder
	for _, m := range messages {
		text := textOnly(m)
		if text == "" {
			continue
		}
		switch m.Role {
		case model.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n", text)
		case model.RoleSystem:
			// System turns are scaffolding, not conversation.
			continue
		default:
			fmt.Fprintf(&b, "User: %s\n", text)
		}
	}
	return b.String()
}

// textOnly extracts the text segments of a message, handling each part
// kind explicitly.
func textOnly(m model.Message) string {
	if len(m.Parts) == 0 {
		return strings.TrimSpace(m.Content)
	}
	var parts []string
	for _, p := range m.Parts {
		switch p.Kind {
		case model.PartText:
			if t := strings.TrimSpace(p.Text); t != "" {
				parts = append(parts, t)
			}
		case model.PartToolCall, model.PartToolResult:
			// excluded from summarizer input
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(m.Content)
	}
	return strings.Join(parts, "\n")
}

// ─── Response parsing ────────────────────────────────────────────────────────

// parseResponse defensively extracts {summary, keyFacts} from raw model
// output. The model may wrap the JSON in prose; if no parseable object is
// found, the entire raw text becomes the summary.
func parseResponse(raw string) (string, []string) {
	candidate := extractJSONObject(raw)
	if candidate != "" {
		var resp compactionResponse
		if err := json.Unmarshal([]byte(candidate), &resp); err == nil && resp.Summary != "" {
			return resp.Summary, resp.KeyFacts
		}
	}
	return strings.TrimSpace(raw), nil
}

// extractJSONObject returns the first balanced top-level {...} in s,
// or "" if none closes.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// ─── Fallback ────────────────────────────────────────────────────────────────

// fallbackResult synthesizes a minimal deterministic summary from the
// project's type/location and the message count.
func fallbackResult(messages []model.Message, project *model.ProjectContextData) *model.CompactionResult {
	kind := "project"
	location := ""
	if project != nil {
		if project.ProjectType != "" {
			kind = project.ProjectType + " project"
		}
		location = joinLocation(project.City, project.State)
	}

	summary := fmt.Sprintf("Conversation about a %s", kind)
	if location != "" {
		summary += " in " + location
	}
	summary += fmt.Sprintf(". %d messages exchanged so far covering project details.", len(messages))

	return &model.CompactionResult{
		Summary:         summary,
		KeyFacts:        []string{},
		EstimatedTokens: estimateSummaryTokens(summary),
	}
}

// estimateSummaryTokens is the rough 4-characters-per-token estimate.
func estimateSummaryTokens(summary string) int {
	return (len(summary) + 3) / 4
}
