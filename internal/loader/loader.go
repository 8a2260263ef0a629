// Package loader implements the budget-aware context loader: the decision,
// made once per turn, between replaying a session's full history and
// serving a compacted summary plus a recent-message window.
//
// Token cost is estimated with a crude linear model (fixed cost per message
// plus fixed overheads) instead of a real tokenizer. The estimate is O(1),
// deterministic, and wrong in detail, which is fine: it only has to bound
// worst-case prompt size, not price it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/knearme/atelier/internal/model"
	"github.com/knearme/atelier/internal/store"
)

// ErrStore reports that the record store was unreachable for the project
// snapshot lookup. This is the only failure the loader propagates; every
// other store failure degrades to an empty or reduced result.
var ErrStore = errors.New("loader: record store unavailable")

// Store is the slice of the record store the loader consumes.
type Store interface {
	GetProjectContext(id string) (*model.ProjectContextData, error)
	GetSession(id string) (*model.Session, error)
	ListMessages(sessionID string, limit int, newestFirst bool) ([]model.Message, error)
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds the token-budget constants. They are injected rather than
// hard-coded so tests can exercise boundary conditions directly.
type Config struct {
	TokensPerMessage  int
	ProjectDataTokens int
	SummaryTokens     int
	MaxContextTokens  int
	RecentMessages    int
}

// DefaultConfig returns the production budget constants.
func DefaultConfig() Config {
	return Config{
		TokensPerMessage:  150,
		ProjectDataTokens: 500,
		SummaryTokens:     1000,
		MaxContextTokens:  30000,
		RecentMessages:    10,
	}
}

// ─── Loader ──────────────────────────────────────────────────────────────────

// Loader decides per session between full replay and summary + recent window.
type Loader struct {
	store Store
	cfg   Config
}

// New creates a Loader over the given store slice.
func New(st Store, cfg Config) *Loader {
	if cfg.TokensPerMessage <= 0 {
		cfg = DefaultConfig()
	}
	return &Loader{store: st, cfg: cfg}
}

// EstimateTokens projects the prompt cost of a context with the given
// message count. Pure, no I/O, so callers can also project future states
// ("after saving N more messages, would this session need compaction?").
func (l *Loader) EstimateTokens(messageCount int, includeProjectData, includeSummary bool) int {
	tokens := messageCount * l.cfg.TokensPerMessage
	if includeProjectData {
		tokens += l.cfg.ProjectDataTokens
	}
	if includeSummary {
		tokens += l.cfg.SummaryTokens
	}
	return tokens
}

// ShouldCompact reports whether a session of the given size no longer fits
// the context budget with project data included.
func (l *Loader) ShouldCompact(messageCount int) bool {
	return l.EstimateTokens(messageCount, true, false) > l.cfg.MaxContextTokens
}

// LoadConversationContext assembles the context bundle for one turn.
//
// A missing project row degrades to a placeholder snapshot and a missing
// session degrades to an empty result; only an unreachable store on the
// project lookup is surfaced, wrapped in ErrStore.
func (l *Loader) LoadConversationContext(ctx context.Context, projectID, sessionID string) (*model.ContextLoadResult, error) {
	project, err := l.store.GetProjectContext(projectID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		log.Printf("loader: project %s not found, continuing with placeholder", projectID)
		project = model.PlaceholderProject(projectID)
	}

	session, err := l.store.GetSession(sessionID)
	if err != nil {
		// Nothing to resume. A brand-new session is not an error.
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("loader: session %s unavailable, starting empty: %v", sessionID, err)
		}
		return &model.ContextLoadResult{
			ProjectData:     project,
			Messages:        nil,
			LoadedFully:     true,
			EstimatedTokens: l.EstimateTokens(0, true, false),
		}, nil
	}

	if !l.ShouldCompact(session.MessageCount) {
		messages, err := l.store.ListMessages(sessionID, 0, false)
		if err != nil {
			log.Printf("loader: listing messages for %s failed, serving empty history: %v", sessionID, err)
			messages = nil
		}
		return &model.ContextLoadResult{
			ProjectData:       project,
			Messages:          messages,
			LoadedFully:       true,
			EstimatedTokens:   l.EstimateTokens(session.MessageCount, true, false),
			TotalMessageCount: session.MessageCount,
		}, nil
	}

	summary := resolveSummary(project, session)

	// Fetch the window newest-first for efficiency, then restore
	// chronological order.
	recent, err := l.store.ListMessages(sessionID, l.cfg.RecentMessages, true)
	if err != nil {
		log.Printf("loader: listing recent messages for %s failed, serving summary only: %v", sessionID, err)
		recent = nil
	}
	reverseMessages(recent)

	return &model.ContextLoadResult{
		ProjectData:       project,
		Messages:          recent,
		Summary:           summary,
		LoadedFully:       false,
		EstimatedTokens:   l.EstimateTokens(len(recent), true, summary != nil),
		TotalMessageCount: session.MessageCount,
	}, nil
}

// resolveSummary prefers the project's own conversation summary, then the
// session's, then nothing.
func resolveSummary(project *model.ProjectContextData, session *model.Session) *string {
	if project != nil && project.ConversationSummary != nil && *project.ConversationSummary != "" {
		return project.ConversationSummary
	}
	if session.SessionSummary != nil && *session.SessionSummary != "" {
		return session.SessionSummary
	}
	return nil
}

func reverseMessages(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
