package ctxtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/memory"
)

// SessionContextTool handles the ctx_session_context MCP tool.
type SessionContextTool struct {
	memory *memory.Service
}

// NewSessionContextTool creates a SessionContextTool.
func NewSessionContextTool(mem *memory.Service) *SessionContextTool {
	return &SessionContextTool{memory: mem}
}

// Definition returns the MCP tool definition for ctx_session_context.
func (t *SessionContextTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_session_context",
		mcp.WithDescription(
			"Build cross-session priming context for a fresh conversation: "+
				"prior session summaries, deduplicated key facts, and project "+
				"memory, formatted for direct inclusion in a prompt.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to build context for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("How many prior summarized sessions to include (default: 5)"),
		),
	)
}

// Handle processes the ctx_session_context tool call.
func (t *SessionContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	limit := intArg(req, "limit", 5)

	sc := t.memory.BuildSessionContext(projectID, limit)

	formatted := memory.FormatContextForPrompt(sc)
	if formatted == "" {
		return mcp.NewToolResultText("No prior sessions or memory for this project yet."), nil
	}
	return mcp.NewToolResultText(formatted), nil
}
