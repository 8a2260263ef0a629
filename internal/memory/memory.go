// Package memory implements the cross-session memory service: persisting a
// session's summary and facts, merging facts into the project-level memory
// with deduplication, and reconstructing aggregate context when a new
// session starts.
//
// Fact identity is the exact content string. Two facts phrased differently
// are two facts; the store layer gives no normalization rule to merge them.
package memory

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/knearme/atelier/internal/model"
	"github.com/knearme/atelier/internal/store"
)

// maxPromptFacts bounds the facts included in a prompt. Cross-session
// priming is additive to the per-turn token budget, not accounted by it,
// so it carries its own hard cap.
const maxPromptFacts = 10

// now is a package-level var to allow test injection.
var now = func() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}

// Store is the slice of the record store the memory service consumes.
type Store interface {
	SaveSessionSummary(id string, summary string, facts []model.KeyFact) error
	GetProjectMemory(projectID string) (*model.ProjectMemory, error)
	SaveProjectMemory(projectID string, mem *model.ProjectMemory) error
	RecentSummarizedSessions(projectID string, limit int) ([]model.Session, error)
}

// Service accumulates and serves memory at the project level.
type Service struct {
	store Store
}

// New creates a memory Service over the given store slice.
func New(st Store) *Service {
	return &Service{store: st}
}

// ─── Ingestion ───────────────────────────────────────────────────────────────

// NewFacts attaches type and timestamp to the raw fact strings produced by
// compaction. Blank strings are dropped.
func NewFacts(contents []string, source string) []model.KeyFact {
	ts := now()
	var facts []model.KeyFact
	for _, c := range contents {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		facts = append(facts, model.KeyFact{
			Type:      model.FactContext,
			Content:   c,
			Timestamp: ts,
			Source:    source,
		})
	}
	return facts
}

// SaveSessionSummary overwrites the session's summary and fact fields.
func (s *Service) SaveSessionSummary(sessionID, summary string, facts []model.KeyFact) error {
	if err := s.store.SaveSessionSummary(sessionID, summary, facts); err != nil {
		return fmt.Errorf("memory: save session summary: %w", err)
	}
	return nil
}

// UpdateProjectMemory merges new facts and preferences into the project's
// long-lived memory. Read-modify-write against the current stored value:
// facts already present (exact content match) are skipped, preferences are
// shallow-merged key by key with the new value winning when supplied.
//
// Only a missing row starts a fresh memory. Any other read failure aborts
// the update; writing over a row we could not read would replace whatever
// it holds.
func (s *Service) UpdateProjectMemory(projectID string, newFacts []model.KeyFact, prefs *model.Preferences) error {
	mem, err := s.store.GetProjectMemory(projectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First write for this project.
		mem = &model.ProjectMemory{}
	case err != nil:
		return fmt.Errorf("memory: read project memory: %w", err)
	}

	seen := make(map[string]bool, len(mem.Facts))
	for _, f := range mem.Facts {
		seen[f.Content] = true
	}
	for _, f := range newFacts {
		if f.Content == "" || seen[f.Content] {
			continue
		}
		seen[f.Content] = true
		mem.Facts = append(mem.Facts, f)
	}

	if prefs != nil {
		if prefs.Tone != "" {
			mem.Preferences.Tone = prefs.Tone
		}
		if prefs.FocusAreas != nil {
			mem.Preferences.FocusAreas = prefs.FocusAreas
		}
		if prefs.AvoidTopics != nil {
			mem.Preferences.AvoidTopics = prefs.AvoidTopics
		}
	}

	mem.UpdatedAt = now()

	if err := s.store.SaveProjectMemory(projectID, mem); err != nil {
		return fmt.Errorf("memory: update project memory: %w", err)
	}
	return nil
}

// ─── Session context ─────────────────────────────────────────────────────────

// BuildSessionContext aggregates up to limit most-recent summarized
// sessions plus the project memory. Never fails: any read problem yields
// an empty context so a new session can always start.
func (s *Service) BuildSessionContext(projectID string, limit int) *model.SessionContext {
	if limit <= 0 {
		limit = 5
	}

	out := &model.SessionContext{}

	sessions, err := s.store.RecentSummarizedSessions(projectID, limit)
	if err != nil {
		log.Printf("memory: loading prior sessions for %s failed, priming empty: %v", projectID, err)
		return out
	}

	seen := make(map[string]bool)
	for _, sess := range sessions {
		if sess.SessionSummary != nil && *sess.SessionSummary != "" {
			out.PreviousSummaries = append(out.PreviousSummaries, *sess.SessionSummary)
		}
		for _, f := range sess.KeyFacts {
			if f.Content == "" || seen[f.Content] {
				continue
			}
			seen[f.Content] = true
			out.KeyFacts = append(out.KeyFacts, f)
		}
	}
	out.SessionCount = len(sessions)

	if mem, err := s.store.GetProjectMemory(projectID); err == nil {
		out.ProjectMemory = mem
	}

	return out
}

// FormatContextForPrompt renders a session context as prompt text: session
// count, up to maxPromptFacts type-tagged facts, preference lines, then the
// single most recent summary verbatim. Pure formatting, no I/O.
func FormatContextForPrompt(sc *model.SessionContext) string {
	if sc == nil || (sc.SessionCount == 0 && len(sc.KeyFacts) == 0 && sc.ProjectMemory == nil) {
		return ""
	}

	var b strings.Builder

	if sc.SessionCount == 1 {
		b.WriteString("You have had 1 previous conversation about this project.\n")
	} else if sc.SessionCount > 1 {
		fmt.Fprintf(&b, "You have had %d previous conversations about this project.\n", sc.SessionCount)
	}

	facts := sc.KeyFacts
	if len(facts) == 0 && sc.ProjectMemory != nil {
		facts = sc.ProjectMemory.Facts
	}
	if len(facts) > 0 {
		b.WriteString("\nKey facts from earlier sessions:\n")
		for i, f := range facts {
			if i >= maxPromptFacts {
				break
			}
			fmt.Fprintf(&b, "- [%s] %s\n", f.Type, f.Content)
		}
	}

	if sc.ProjectMemory != nil {
		p := sc.ProjectMemory.Preferences
		if p.Tone != "" {
			fmt.Fprintf(&b, "\nPreferred tone: %s\n", p.Tone)
		}
		if len(p.FocusAreas) > 0 {
			fmt.Fprintf(&b, "Focus on: %s\n", strings.Join(p.FocusAreas, ", "))
		}
		if len(p.AvoidTopics) > 0 {
			fmt.Fprintf(&b, "Avoid: %s\n", strings.Join(p.AvoidTopics, ", "))
		}
	}

	if len(sc.PreviousSummaries) > 0 {
		b.WriteString("\nMost recent session summary:\n")
		b.WriteString(sc.PreviousSummaries[0])
		b.WriteString("\n")
	}

	return b.String()
}
