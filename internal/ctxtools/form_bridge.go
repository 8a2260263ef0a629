package ctxtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/bridge"
)

// FormBridgeTool handles the ctx_form_bridge MCP tool: convert between the
// conversation's extracted-field bag and the form representation when the
// user switches modality.
type FormBridgeTool struct{}

// NewFormBridgeTool creates a FormBridgeTool.
func NewFormBridgeTool() *FormBridgeTool {
	return &FormBridgeTool{}
}

// Definition returns the MCP tool definition for ctx_form_bridge.
func (t *FormBridgeTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_form_bridge",
		mcp.WithDescription(
			"Convert project data between modalities. Direction 'to_form' maps "+
				"an extracted-field bag onto form fields; 'to_conversation' maps "+
				"form fields back into a bag. Both directions report the form's "+
				"completeness score and whether it holds enough data to hand off "+
				"without re-asking basics. Optionally parses a city/state pair "+
				"out of a free-form address.",
		),
		mcp.WithString("direction",
			mcp.Required(),
			mcp.Description("Either 'to_form' or 'to_conversation'"),
		),
		mcp.WithString("extracted",
			mcp.Description("JSON object of conversation-extracted fields (for to_form)"),
		),
		mcp.WithString("form",
			mcp.Description("JSON form data object (for to_conversation)"),
		),
		mcp.WithString("address",
			mcp.Description("Free-form address to parse a city/state pair from"),
		),
	)
}

// bridgeResult is the JSON payload returned by ctx_form_bridge.
type bridgeResult struct {
	Form           *bridge.FormData  `json:"form,omitempty"`
	Extracted      map[string]string `json:"extracted,omitempty"`
	Completeness   int               `json:"completeness"`
	HasMinimumData bool              `json:"has_minimum_data"`
	Location       *bridge.Location  `json:"location,omitempty"`
}

// Handle processes the ctx_form_bridge tool call.
func (t *FormBridgeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	direction := req.GetString("direction", "")

	var result bridgeResult
	switch direction {
	case "to_form":
		extracted, errMsg := stringMapArg(req, "extracted")
		if errMsg != "" {
			return mcp.NewToolResultError(errMsg), nil
		}
		form := bridge.ConversationToForm(extracted)
		result.Form = &form
		result.Completeness = bridge.FormCompleteness(form)
		result.HasMinimumData = bridge.HasMinimumData(form)

	case "to_conversation":
		var form bridge.FormData
		if raw := req.GetString("form", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &form); err != nil {
				return mcp.NewToolResultError("'form' must be a JSON form data object"), nil
			}
		}
		result.Extracted = bridge.FormToConversation(form)
		result.Completeness = bridge.FormCompleteness(form)
		result.HasMinimumData = bridge.HasMinimumData(form)

	default:
		return mcp.NewToolResultError("'direction' must be 'to_form' or 'to_conversation'"), nil
	}

	if addr := req.GetString("address", ""); addr != "" {
		result.Location = bridge.ParseLocationFromAddress(addr)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
