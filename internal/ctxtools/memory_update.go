package ctxtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/memory"
	"github.com/knearme/atelier/internal/model"
)

// MemoryUpdateTool handles the ctx_memory_update MCP tool.
type MemoryUpdateTool struct {
	memory *memory.Service
}

// NewMemoryUpdateTool creates a MemoryUpdateTool.
func NewMemoryUpdateTool(mem *memory.Service) *MemoryUpdateTool {
	return &MemoryUpdateTool{memory: mem}
}

// Definition returns the MCP tool definition for ctx_memory_update.
func (t *MemoryUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_memory_update",
		mcp.WithDescription(
			"Merge facts and preferences into a project's long-lived memory. "+
				"Facts are deduplicated by exact content; preferences are "+
				"shallow-merged with the new value winning per key.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project whose memory to update"),
		),
		mcp.WithString("facts",
			mcp.Description("JSON array of fact strings, e.g. \"[\\\"prefers walnut\\\"]\""),
		),
		mcp.WithString("source",
			mcp.Description("Session id or other origin recorded on new facts"),
		),
		mcp.WithString("tone",
			mcp.Description("Preferred writing tone"),
		),
		mcp.WithString("focus_areas",
			mcp.Description("JSON array of focus areas"),
		),
		mcp.WithString("avoid_topics",
			mcp.Description("JSON array of topics to avoid"),
		),
	)
}

// Handle processes the ctx_memory_update tool call.
func (t *MemoryUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	rawFacts, errMsg := stringSliceArg(req, "facts")
	if errMsg != "" {
		return mcp.NewToolResultError(errMsg), nil
	}
	focus, errMsg := stringSliceArg(req, "focus_areas")
	if errMsg != "" {
		return mcp.NewToolResultError(errMsg), nil
	}
	avoid, errMsg := stringSliceArg(req, "avoid_topics")
	if errMsg != "" {
		return mcp.NewToolResultError(errMsg), nil
	}
	tone := req.GetString("tone", "")

	var prefs *model.Preferences
	if tone != "" || focus != nil || avoid != nil {
		prefs = &model.Preferences{Tone: tone, FocusAreas: focus, AvoidTopics: avoid}
	}

	facts := memory.NewFacts(rawFacts, req.GetString("source", ""))
	if len(facts) == 0 && prefs == nil {
		return mcp.NewToolResultError("nothing to update: supply 'facts' and/or preferences"), nil
	}

	if err := t.memory.UpdateProjectMemory(projectID, facts, prefs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update memory: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Project memory updated for %q: %d fact(s) merged.", projectID, len(facts),
	)), nil
}
