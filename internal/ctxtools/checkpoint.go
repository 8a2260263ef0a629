package ctxtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/bridge"
	"github.com/knearme/atelier/internal/cache"
	"github.com/knearme/atelier/internal/model"
)

// CheckpointSaveTool handles the ctx_checkpoint_save MCP tool. It merges a
// patch into the cached checkpoint for a session, so repeated saves from
// either modality accumulate fields instead of overwriting them.
type CheckpointSaveTool struct {
	cache *cache.Cache
}

// NewCheckpointSaveTool creates a CheckpointSaveTool.
func NewCheckpointSaveTool(c *cache.Cache) *CheckpointSaveTool {
	return &CheckpointSaveTool{cache: c}
}

// Definition returns the MCP tool definition for ctx_checkpoint_save.
func (t *CheckpointSaveTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_checkpoint_save",
		mcp.WithDescription(
			"Save or update a session checkpoint in the local cache. The "+
				"patch is merged into any existing checkpoint: supplied fields "+
				"overwrite, absent fields are retained, so switching between "+
				"conversation and form never loses populated data.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to checkpoint"),
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the session belongs to"),
		),
		mcp.WithString("extracted",
			mcp.Description("JSON object of conversation-extracted fields"),
		),
		mcp.WithString("state",
			mcp.Description("JSON object of shared UI/content state"),
		),
		mcp.WithString("phase",
			mcp.Description("Authoring phase: gathering, images, generating, review, or ready"),
		),
		mcp.WithNumber("message_count",
			mcp.Description("Messages exchanged when this checkpoint was taken"),
		),
		mcp.WithString("draft",
			mcp.Description("Unsent draft text to preserve locally"),
		),
		mcp.WithBoolean("clear_draft",
			mcp.Description("Discard the draft text currently cached for this session"),
		),
	)
}

// Handle processes the ctx_checkpoint_save tool call.
func (t *CheckpointSaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	projectID := req.GetString("project_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	extracted, errMsg := stringMapArg(req, "extracted")
	if errMsg != "" {
		return mcp.NewToolResultError(errMsg), nil
	}
	state, errMsg := stringMapArg(req, "state")
	if errMsg != "" {
		return mcp.NewToolResultError(errMsg), nil
	}

	phase := model.Phase(req.GetString("phase", ""))
	switch phase {
	case "", model.PhaseGathering, model.PhaseImages, model.PhaseGenerating, model.PhaseReview, model.PhaseReady:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown phase %q", phase)), nil
	}

	patch := bridge.CheckpointPatch{
		Extracted: extracted,
		State:     state,
		Phase:     phase,
	}
	if n := intArg(req, "message_count", -1); n >= 0 {
		patch.MessageCount = &n
	}

	var existing *model.SessionCheckpoint
	var draft string
	if entry, err := t.cache.Get(sessionID); err == nil {
		existing = entry.Checkpoint
		draft = entry.Draft
	}
	// An empty "draft" argument means "not supplied", so clearing a stale
	// draft needs its own flag. A new draft in the same call wins.
	if boolArg(req, "clear_draft", false) {
		draft = ""
	}
	if d := req.GetString("draft", ""); d != "" {
		draft = d
	}

	merged := bridge.MergeCheckpoint(existing, patch)

	err := t.cache.Upsert(cache.Entry{
		SessionID:  sessionID,
		ProjectID:  projectID,
		Draft:      draft,
		Checkpoint: &merged,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save checkpoint: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Checkpoint saved for session %q (phase: %s, %d extracted field(s), %d message(s)).",
		sessionID, merged.Phase, len(merged.Extracted), merged.MessageCount,
	)), nil
}

// ─── CheckpointGetTool ──────────────────────────────────────────────────────

// CheckpointGetTool handles the ctx_checkpoint_get MCP tool.
type CheckpointGetTool struct {
	cache *cache.Cache
}

// NewCheckpointGetTool creates a CheckpointGetTool.
func NewCheckpointGetTool(c *cache.Cache) *CheckpointGetTool {
	return &CheckpointGetTool{cache: c}
}

// Definition returns the MCP tool definition for ctx_checkpoint_get.
func (t *CheckpointGetTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_checkpoint_get",
		mcp.WithDescription(
			"Retrieve a cached session checkpoint for resume. Look up by "+
				"session_id, by project_id (most recently touched session for "+
				"that project), or neither for the most recent checkpoint "+
				"overall. The cache is not authoritative: the server-side "+
				"session wins on conflict for everything except unsent drafts.",
		),
		mcp.WithString("session_id",
			mcp.Description("Exact session to look up"),
		),
		mcp.WithString("project_id",
			mcp.Description("Most recent cached session for this project"),
		),
	)
}

// Handle processes the ctx_checkpoint_get tool call.
func (t *CheckpointGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	projectID := req.GetString("project_id", "")

	var (
		entry *cache.Entry
		err   error
	)
	switch {
	case sessionID != "":
		entry, err = t.cache.Get(sessionID)
	case projectID != "":
		entry, err = t.cache.GetByProject(projectID)
	default:
		entry, err = t.cache.MostRecent()
	}
	if errors.Is(err, cache.ErrNotFound) {
		return mcp.NewToolResultText("No cached checkpoint found."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read cache: %v", err)), nil
	}

	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode entry: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
