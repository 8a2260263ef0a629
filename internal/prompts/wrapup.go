package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// WrapUpPrompt handles the atelier-wrapup MCP prompt.
// It guides the AI through the end-of-session sequence: checkpoint,
// compact, and memory update.
type WrapUpPrompt struct{}

// NewWrapUpPrompt creates a WrapUpPrompt.
func NewWrapUpPrompt() *WrapUpPrompt {
	return &WrapUpPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *WrapUpPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("atelier-wrapup",
		mcp.WithPromptDescription(
			"Wrap up the current session: save a final checkpoint, compact "+
				"the transcript into a summary and key facts, and fold durable "+
				"preferences into project memory.",
		),
		mcp.WithArgument("project_id",
			mcp.ArgumentDescription("Project the session belongs to"),
		),
		mcp.WithArgument("session_id",
			mcp.ArgumentDescription("Session to wrap up"),
		),
	)
}

// Handle processes the atelier-wrapup prompt request.
func (p *WrapUpPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	projectID, sessionID := "", ""
	if args := req.Params.Arguments; args != nil {
		projectID = args["project_id"]
		sessionID = args["session_id"]
	}

	return &mcp.GetPromptResult{
		Description: "Wrap up the current session",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"We're done for now — please wrap up this session (project: '%s', session: '%s').\n\n"+
						"Please:\n"+
						"1. Run `ctx_checkpoint_save` with the current phase, extracted fields, and message count\n"+
						"2. Run `ctx_compact` to summarize the transcript and extract key facts\n"+
						"3. If I stated any durable preferences this session that compaction missed, run `ctx_memory_update` with them\n"+
						"4. Confirm what was saved so I know I can safely close this conversation",
					projectID, sessionID,
				)),
			},
		},
	}, nil
}
