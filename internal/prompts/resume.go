// Package prompts implements MCP prompt handlers for the context engine.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ResumePrompt handles the atelier-resume MCP prompt.
// It guides the AI to restore project state and pick up where the user
// left off.
type ResumePrompt struct{}

// NewResumePrompt creates a ResumePrompt.
func NewResumePrompt() *ResumePrompt {
	return &ResumePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ResumePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("atelier-resume",
		mcp.WithPromptDescription(
			"Resume work on a project. Restores the latest checkpoint, "+
				"loads cross-session memory, and rebuilds conversational "+
				"context so nothing has to be re-asked.",
		),
		mcp.WithArgument("project_id",
			mcp.ArgumentDescription("Project to resume. Omit to resume the most recently touched session."),
		),
	)
}

// Handle processes the atelier-resume prompt request.
func (p *ResumePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	projectID := ""
	if args := req.Params.Arguments; args != nil {
		projectID = args["project_id"]
	}

	scope := "the most recently touched session"
	checkpointArgs := "no arguments"
	if projectID != "" {
		scope = fmt.Sprintf("project '%s'", projectID)
		checkpointArgs = fmt.Sprintf("project_id='%s'", projectID)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Resume %s", scope),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to resume working on %s.\n\n"+
						"Please:\n"+
						"1. Run `ctx_checkpoint_get` with %s to restore the latest checkpoint (phase, extracted fields, any unsent draft)\n"+
						"2. Run `ctx_session_context` for the project to recall prior session summaries, key facts, and my preferences\n"+
						"3. Run `ctx_load` with the project and session from the checkpoint to rebuild the conversation context\n"+
						"4. Tell me where we left off and what is still missing — do not re-ask anything the restored state already answers",
					scope, checkpointArgs,
				)),
			},
		},
	}, nil
}
