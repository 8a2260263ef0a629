package ctxtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/store"
)

// StatsTool handles the ctx_stats MCP tool.
type StatsTool struct {
	store *store.Store
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(st *store.Store) *StatsTool {
	return &StatsTool{store: st}
}

// Definition returns the MCP tool definition for ctx_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_stats",
		mcp.WithDescription(
			"Aggregate counts across the record store: projects, sessions, "+
				"messages, and how many sessions have been compacted.",
		),
	)
}

// Handle processes the ctx_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to gather stats: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Projects: %d\nSessions: %d (%d summarized)\nMessages: %d",
		stats.TotalProjects, stats.TotalSessions, stats.Summarized, stats.TotalMessages,
	)), nil
}
