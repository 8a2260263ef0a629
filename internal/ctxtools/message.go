package ctxtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/loader"
	"github.com/knearme/atelier/internal/model"
	"github.com/knearme/atelier/internal/store"
)

// MessageAppendTool handles the ctx_message_append MCP tool.
type MessageAppendTool struct {
	store  *store.Store
	loader *loader.Loader
}

// NewMessageAppendTool creates a MessageAppendTool.
func NewMessageAppendTool(st *store.Store, l *loader.Loader) *MessageAppendTool {
	return &MessageAppendTool{store: st, loader: l}
}

// Definition returns the MCP tool definition for ctx_message_append.
func (t *MessageAppendTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_message_append",
		mcp.WithDescription(
			"Append one conversational turn to a session. Creates the session "+
				"on first append and maintains its message count. Reports "+
				"whether the session has now outgrown the context budget and "+
				"should be compacted.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project the session belongs to"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to append to"),
		),
		mcp.WithString("role",
			mcp.Required(),
			mcp.Description("Author of the turn: user, assistant, or system"),
		),
		mcp.WithString("content",
			mcp.Description("Plain text content of the turn"),
		),
		mcp.WithString("parts",
			mcp.Description("JSON array of typed segments (kind: text, tool_call, or tool_result)"),
		),
	)
}

// Handle processes the ctx_message_append tool call.
func (t *MessageAppendTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	sessionID := req.GetString("session_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	role := model.Role(req.GetString("role", ""))
	switch role {
	case model.RoleUser, model.RoleAssistant, model.RoleSystem:
	default:
		return mcp.NewToolResultError("'role' must be user, assistant, or system"), nil
	}

	content := req.GetString("content", "")
	var parts []model.Part
	if raw := req.GetString("parts", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &parts); err != nil {
			return mcp.NewToolResultError("'parts' must be a JSON array of segments"), nil
		}
	}
	if content == "" && len(parts) == 0 {
		return mcp.NewToolResultError("supply 'content' and/or 'parts'"), nil
	}

	id, err := t.store.AppendMessage(projectID, model.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Parts:     parts,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to append message: %v", err)), nil
	}

	sess, err := t.store.GetSession(sessionID)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("Message %s appended.", id)), nil
	}

	note := ""
	if t.loader.ShouldCompact(sess.MessageCount) {
		note = " The session has outgrown the context budget — consider ctx_compact."
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Message %s appended (session now at %d message(s), ~%d tokens).%s",
		id, sess.MessageCount, t.loader.EstimateTokens(sess.MessageCount, true, false), note,
	)), nil
}
