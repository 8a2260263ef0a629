package ctxtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/loader"
	"github.com/knearme/atelier/internal/model"
)

// LoadTool handles the ctx_load MCP tool.
type LoadTool struct {
	loader *loader.Loader
}

// NewLoadTool creates a LoadTool with the given loader.
func NewLoadTool(l *loader.Loader) *LoadTool {
	return &LoadTool{loader: l}
}

// Definition returns the MCP tool definition for ctx_load.
func (t *LoadTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_load",
		mcp.WithDescription(
			"Load the conversation context for a turn. Decides between full "+
				"history replay and a compacted summary plus the most recent "+
				"messages, based on the session's token budget. Always returns "+
				"a usable bundle, degrading gracefully when project metadata "+
				"or prior messages are unavailable.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the conversation is authoring"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to load context for"),
		),
	)
}

// Handle processes the ctx_load tool call.
func (t *LoadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	sessionID := req.GetString("session_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	result, err := t.loader.LoadConversationContext(ctx, projectID, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load context: %v", err)), nil
	}

	return mcp.NewToolResultText(formatLoadResult(result)), nil
}

// formatLoadResult renders a ContextLoadResult as readable markdown.
func formatLoadResult(r *model.ContextLoadResult) string {
	var b strings.Builder

	mode := "full history"
	if !r.LoadedFully {
		mode = "summary + recent window"
	}
	fmt.Fprintf(&b, "# Context for project %s\n\n", r.ProjectData.ID)
	fmt.Fprintf(&b, "**Strategy:** %s | **Messages:** %d of %d | **Estimated tokens:** %d\n\n",
		mode, len(r.Messages), r.TotalMessageCount, r.EstimatedTokens)

	if p := r.ProjectData; p != nil {
		b.WriteString("## Project\n")
		writeIf(&b, "Title", p.Title)
		writeIf(&b, "Type", p.ProjectType)
		writeIf(&b, "Location", locationLine(p))
		writeIf(&b, "Status", p.Status)
		if len(p.Materials) > 0 {
			writeIf(&b, "Materials", strings.Join(p.Materials, ", "))
		}
		if len(p.Techniques) > 0 {
			writeIf(&b, "Techniques", strings.Join(p.Techniques, ", "))
		}
		b.WriteString("\n")
	}

	if r.Summary != nil && *r.Summary != "" {
		b.WriteString("## Earlier conversation (summarized)\n")
		b.WriteString(*r.Summary)
		b.WriteString("\n\n")
	}

	if len(r.Messages) > 0 {
		b.WriteString("## Messages\n")
		for _, m := range r.Messages {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", m.Role, m.CreatedAt, truncate(m.TextParts(), 200))
		}
	}

	return b.String()
}

func locationLine(p *model.ProjectContextData) string {
	switch {
	case p.City != "" && p.State != "":
		return p.City + ", " + p.State
	case p.City != "":
		return p.City
	default:
		return p.State
	}
}

func writeIf(b *strings.Builder, label, v string) {
	if v != "" {
		fmt.Fprintf(b, "- **%s:** %s\n", label, v)
	}
}

// truncate shortens a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
