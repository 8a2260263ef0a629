// Package ctxtools provides the MCP tool handlers for the conversational
// context and memory engine.
//
// Each tool follows the same pattern:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Input validation failures are returned as tool errors, never as Go
// errors, so the MCP client always receives a well-formed result.
package ctxtools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringMapArg parses a JSON-object argument into a string map. A missing
// or empty argument yields nil; malformed JSON yields an error message for
// the tool result.
func stringMapArg(req mcp.CallToolRequest, key string) (map[string]string, string) {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil, ""
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, "'" + key + "' must be a JSON object of strings"
	}
	return out, ""
}

// stringSliceArg parses a JSON-array argument into a string slice.
func stringSliceArg(req mcp.CallToolRequest, key string) ([]string, string) {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil, ""
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, "'" + key + "' must be a JSON array of strings"
	}
	return out, ""
}
