package ctxtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/compact"
	"github.com/knearme/atelier/internal/memory"
	"github.com/knearme/atelier/internal/store"
)

// CompactTool handles the ctx_compact MCP tool: summarize a session's full
// transcript, persist the summary and facts on the session, and fold the
// facts into the project's long-lived memory.
type CompactTool struct {
	store     *store.Store
	compactor *compact.Compactor
	memory    *memory.Service
}

// NewCompactTool creates a CompactTool.
func NewCompactTool(st *store.Store, c *compact.Compactor, mem *memory.Service) *CompactTool {
	return &CompactTool{store: st, compactor: c, memory: mem}
}

// Definition returns the MCP tool definition for ctx_compact.
func (t *CompactTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_compact",
		mcp.WithDescription(
			"Compact a session: summarize its transcript into 2-4 paragraphs "+
				"plus extracted key facts, save both on the session, and merge "+
				"the facts into project memory. Compaction never fails — if the "+
				"summarizer is unavailable a deterministic fallback summary is "+
				"used. Call when a session ends or has grown large.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the session belongs to"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to compact"),
		),
		mcp.WithBoolean("persist",
			mcp.Description("Persist summary/facts to the session, project memory, and project summary field (default: true)"),
		),
	)
}

// Handle processes the ctx_compact tool call.
func (t *CompactTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	sessionID := req.GetString("session_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	persist := boolArg(req, "persist", true)

	messages, err := t.store.ListMessages(sessionID, 0, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load transcript: %v", err)), nil
	}
	if len(messages) == 0 {
		return mcp.NewToolResultText("Session has no messages; nothing to compact."), nil
	}

	project, err := t.store.GetProjectContext(projectID)
	if err != nil {
		// Compaction still works with degraded project metadata.
		project = nil
	}

	result := t.compactor.CompactConversation(ctx, messages, project)

	if persist {
		facts := memory.NewFacts(result.KeyFacts, sessionID)
		if err := t.memory.SaveSessionSummary(sessionID, result.Summary, facts); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to save session summary: %v", err)), nil
		}
		if err := t.memory.UpdateProjectMemory(projectID, facts, nil); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to update project memory: %v", err)), nil
		}
		// Best-effort: the project's own conversation summary feeds the
		// loader's summary resolution on later turns.
		_ = t.store.UpdateProject(projectID, store.UpdateProjectParams{
			ConversationSummary: &result.Summary,
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s compacted\n\n", sessionID)
	fmt.Fprintf(&b, "**Messages summarized:** %d | **Summary tokens (est.):** %d | **Facts extracted:** %d\n\n",
		len(messages), result.EstimatedTokens, len(result.KeyFacts))
	b.WriteString("## Summary\n")
	b.WriteString(result.Summary)
	b.WriteString("\n")
	if len(result.KeyFacts) > 0 {
		b.WriteString("\n## Key facts\n")
		for _, f := range result.KeyFacts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if !persist {
		b.WriteString("\n(dry run — nothing was persisted)\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}
