package ctxtools

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knearme/atelier/internal/bridge"
	"github.com/knearme/atelier/internal/cache"
	"github.com/knearme/atelier/internal/compact"
	"github.com/knearme/atelier/internal/llm"
	"github.com/knearme/atelier/internal/loader"
	"github.com/knearme/atelier/internal/memory"
	"github.com/knearme/atelier/internal/model"
	"github.com/knearme/atelier/internal/store"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestStore creates a record store in a temp directory.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newTestCache opens a session cache in a temp directory.
func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open test cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// mustNotError fails the test when the handler returned a Go error or a
// tool-level error result.
func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if r != nil && r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
}

func seedMessages(t *testing.T, s *store.Store, projectID, sessionID string, contents ...string) {
	t.Helper()
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		if _, err := s.AppendMessage(projectID, model.Message{
			SessionID: sessionID, Role: role, Content: c,
		}); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}
}

// ─── MessageAppendTool ───────────────────────────────────────────────────────

func TestMessageAppendTool(t *testing.T) {
	s := newTestStore(t)
	l := loader.New(s, loader.DefaultConfig())
	tool := NewMessageAppendTool(s, l)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "proj-1",
		"session_id": "sess-1",
		"role":       "user",
		"content":    "The old fence was leaning badly.",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "appended") {
		t.Errorf("unexpected response: %s", text)
	}
	if strings.Contains(text, "outgrown") {
		t.Error("one message should not trigger a compaction note")
	}

	sess, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.MessageCount != 1 {
		t.Errorf("message count = %d, want 1", sess.MessageCount)
	}
}

func TestMessageAppendToolValidation(t *testing.T) {
	s := newTestStore(t)
	l := loader.New(s, loader.DefaultConfig())
	tool := NewMessageAppendTool(s, l)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing project", map[string]interface{}{"session_id": "s", "role": "user", "content": "x"}},
		{"missing session", map[string]interface{}{"project_id": "p", "role": "user", "content": "x"}},
		{"bad role", map[string]interface{}{"project_id": "p", "session_id": "s", "role": "narrator", "content": "x"}},
		{"no content or parts", map[string]interface{}{"project_id": "p", "session_id": "s", "role": "user"}},
		{"malformed parts", map[string]interface{}{"project_id": "p", "session_id": "s", "role": "user", "parts": "not json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !result.IsError {
				t.Errorf("expected tool error, got: %s", resultText(result))
			}
		})
	}
}

func TestMessageAppendToolCompactionNote(t *testing.T) {
	s := newTestStore(t)
	// Tiny budget: a second message outgrows it.
	l := loader.New(s, loader.Config{
		TokensPerMessage:  150,
		ProjectDataTokens: 500,
		SummaryTokens:     1000,
		MaxContextTokens:  700,
		RecentMessages:    10,
	})
	tool := NewMessageAppendTool(s, l)

	seedMessages(t, s, "proj-1", "sess-1", "first")

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "proj-1",
		"session_id": "sess-1",
		"role":       "assistant",
		"content":    "second",
	}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "ctx_compact") {
		t.Errorf("expected compaction suggestion, got: %s", resultText(result))
	}
}

// ─── LoadTool ────────────────────────────────────────────────────────────────

func TestLoadTool(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveProject(store.ProjectParams{
		ID: "proj-1", Title: "Fence replacement", City: "Tulsa", State: "OK",
	}); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}
	seedMessages(t, s, "proj-1", "sess-1", "The old fence was leaning.", "How long was the run?")

	tool := NewLoadTool(loader.New(s, loader.DefaultConfig()))
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "proj-1",
		"session_id": "sess-1",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	for _, want := range []string{"full history", "Fence replacement", "Tulsa, OK", "The old fence was leaning."} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestLoadToolUnknownProjectDegrades(t *testing.T) {
	s := newTestStore(t)
	tool := NewLoadTool(loader.New(s, loader.DefaultConfig()))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "ghost",
		"session_id": "new-sess",
	}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "ghost") {
		t.Errorf("placeholder project id missing: %s", resultText(result))
	}
}

// ─── CompactTool ─────────────────────────────────────────────────────────────

func TestCompactToolPersists(t *testing.T) {
	s := newTestStore(t)
	seedMessages(t, s, "proj-1", "sess-1", "We rebuilt the fence.", "What wood?", "Cedar pickets.")

	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return `{"summary": "Rebuilt a cedar fence.", "keyFacts": ["used cedar pickets"]}`, nil
	})
	compactor := compact.New(gen, s, compact.DefaultConfig())
	tool := NewCompactTool(s, compactor, memory.New(s))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "proj-1",
		"session_id": "sess-1",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "Rebuilt a cedar fence.") || !strings.Contains(text, "used cedar pickets") {
		t.Errorf("output: %s", text)
	}

	sess, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.SessionSummary == nil || *sess.SessionSummary != "Rebuilt a cedar fence." {
		t.Errorf("session summary = %v", sess.SessionSummary)
	}

	mem, err := s.GetProjectMemory("proj-1")
	if err != nil {
		t.Fatalf("GetProjectMemory: %v", err)
	}
	if len(mem.Facts) != 1 || mem.Facts[0].Content != "used cedar pickets" {
		t.Errorf("memory facts = %v", mem.Facts)
	}

	p, err := s.GetProjectContext("proj-1")
	if err != nil {
		t.Fatalf("GetProjectContext: %v", err)
	}
	if p.ConversationSummary == nil || *p.ConversationSummary != "Rebuilt a cedar fence." {
		t.Errorf("project conversation summary = %v", p.ConversationSummary)
	}
}

func TestCompactToolDryRun(t *testing.T) {
	s := newTestStore(t)
	seedMessages(t, s, "proj-1", "sess-1", "hello")

	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("offline")
	})
	tool := NewCompactTool(s, compact.New(gen, s, compact.DefaultConfig()), memory.New(s))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "proj-1",
		"session_id": "sess-1",
		"persist":    false,
	}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "dry run") {
		t.Errorf("output: %s", resultText(result))
	}
	sess, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.SessionSummary != nil {
		t.Errorf("dry run must not persist, got %q", *sess.SessionSummary)
	}
}

func TestCompactToolEmptySession(t *testing.T) {
	s := newTestStore(t)
	gen := llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("offline")
	})
	tool := NewCompactTool(s, compact.New(gen, s, compact.DefaultConfig()), memory.New(s))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "proj-1",
		"session_id": "empty-sess",
	}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "nothing to compact") {
		t.Errorf("output: %s", resultText(result))
	}
}

// ─── SessionContextTool ──────────────────────────────────────────────────────

func TestSessionContextTool(t *testing.T) {
	s := newTestStore(t)
	seedMessages(t, s, "proj-1", "sess-1", "hi")
	facts := []model.KeyFact{{Type: model.FactPreference, Content: "prefers cedar", Timestamp: "2026-01-01 00:00:00"}}
	if err := s.SaveSessionSummary("sess-1", "Talked about fencing.", facts); err != nil {
		t.Fatalf("SaveSessionSummary: %v", err)
	}

	tool := NewSessionContextTool(memory.New(s))
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "proj-1",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "prefers cedar") || !strings.Contains(text, "Talked about fencing.") {
		t.Errorf("output: %s", text)
	}
}

func TestSessionContextToolEmptyProject(t *testing.T) {
	s := newTestStore(t)
	tool := NewSessionContextTool(memory.New(s))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "fresh",
	}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "No prior sessions") {
		t.Errorf("output: %s", resultText(result))
	}
}

// ─── MemoryUpdateTool ────────────────────────────────────────────────────────

func TestMemoryUpdateTool(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveProject(store.ProjectParams{ID: "proj-1"}); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}
	tool := NewMemoryUpdateTool(memory.New(s))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id":  "proj-1",
		"facts":       `["prefers cedar", "works weekends"]`,
		"tone":        "casual",
		"focus_areas": `["craftsmanship"]`,
	}))
	mustNotError(t, result, err)

	mem, err := s.GetProjectMemory("proj-1")
	if err != nil {
		t.Fatalf("GetProjectMemory: %v", err)
	}
	if len(mem.Facts) != 2 {
		t.Errorf("facts = %v", mem.Facts)
	}
	if mem.Preferences.Tone != "casual" {
		t.Errorf("tone = %q", mem.Preferences.Tone)
	}
}

func TestMemoryUpdateToolNothingToDo(t *testing.T) {
	s := newTestStore(t)
	tool := NewMemoryUpdateTool(memory.New(s))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "proj-1",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for empty update")
	}
}

// ─── Checkpoint tools ────────────────────────────────────────────────────────

func TestCheckpointSaveAndGet(t *testing.T) {
	c := newTestCache(t)
	save := NewCheckpointSaveTool(c)
	get := NewCheckpointGetTool(c)

	result, err := save.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id": "sess-1",
		"project_id": "proj-1",
		"extracted":  `{"projectType": "fence", "city": "Tulsa"}`,
		"phase":      "gathering",
		"draft":      "half-typed message",
	}))
	mustNotError(t, result, err)

	// Second save patches one field and advances the phase; the rest
	// accumulates.
	result, err = save.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id":    "sess-1",
		"project_id":    "proj-1",
		"extracted":     `{"materials": "cedar"}`,
		"phase":         "images",
		"message_count": float64(14),
	}))
	mustNotError(t, result, err)

	result, err = get.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id": "sess-1",
	}))
	mustNotError(t, result, err)

	var entry cache.Entry
	if err := json.Unmarshal([]byte(resultText(result)), &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.Draft != "half-typed message" {
		t.Errorf("draft = %q, should survive a patch without one", entry.Draft)
	}
	cp := entry.Checkpoint
	if cp == nil {
		t.Fatal("missing checkpoint")
	}
	if cp.Extracted["projectType"] != "fence" || cp.Extracted["materials"] != "cedar" {
		t.Errorf("extracted = %v", cp.Extracted)
	}
	if cp.Phase != model.PhaseImages || cp.MessageCount != 14 {
		t.Errorf("phase=%s count=%d", cp.Phase, cp.MessageCount)
	}
}

func TestCheckpointSaveClearsDraft(t *testing.T) {
	c := newTestCache(t)
	save := NewCheckpointSaveTool(c)

	result, err := save.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id": "sess-1",
		"project_id": "proj-1",
		"draft":      "abandoned half-typed message",
	}))
	mustNotError(t, result, err)

	result, err = save.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id":  "sess-1",
		"project_id":  "proj-1",
		"clear_draft": true,
	}))
	mustNotError(t, result, err)

	entry, err := c.Get("sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Draft != "" {
		t.Errorf("draft = %q, want cleared", entry.Draft)
	}
}

func TestCheckpointSaveRejectsUnknownPhase(t *testing.T) {
	c := newTestCache(t)
	tool := NewCheckpointSaveTool(c)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id": "sess-1",
		"project_id": "proj-1",
		"phase":      "procrastinating",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for unknown phase")
	}
}

func TestCheckpointGetMostRecent(t *testing.T) {
	c := newTestCache(t)
	if err := c.Upsert(cache.Entry{SessionID: "sess-1", ProjectID: "proj-1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	tool := NewCheckpointGetTool(c)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "sess-1") {
		t.Errorf("output: %s", resultText(result))
	}
}

func TestCheckpointGetNotFound(t *testing.T) {
	c := newTestCache(t)
	tool := NewCheckpointGetTool(c)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"session_id": "ghost",
	}))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "No cached checkpoint") {
		t.Errorf("output: %s", resultText(result))
	}
}

// ─── FormBridgeTool ──────────────────────────────────────────────────────────

func TestFormBridgeToolToForm(t *testing.T) {
	tool := NewFormBridgeTool()

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"direction": "to_form",
		"extracted": `{"projectType": "deck", "city": "Boise", "problem": "rot", "solution": "rebuild"}`,
	}))
	mustNotError(t, result, err)

	var br bridgeResult
	if err := json.Unmarshal([]byte(resultText(result)), &br); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if br.Form == nil || br.Form.ProjectType != "deck" {
		t.Errorf("form = %+v", br.Form)
	}
	if br.Completeness != 67 {
		t.Errorf("completeness = %d, want 67", br.Completeness)
	}
	if !br.HasMinimumData {
		t.Error("expected minimum data")
	}
}

func TestFormBridgeToolToConversation(t *testing.T) {
	tool := NewFormBridgeTool()

	form, _ := json.Marshal(bridge.FormData{
		ProjectType: "deck",
		Materials:   []string{"cedar", "composite"},
	})
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"direction": "to_conversation",
		"form":      string(form),
	}))
	mustNotError(t, result, err)

	var br bridgeResult
	if err := json.Unmarshal([]byte(resultText(result)), &br); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if br.Extracted["materials"] != "cedar, composite" {
		t.Errorf("extracted = %v", br.Extracted)
	}
	if br.HasMinimumData {
		t.Error("type without problem/solution is below the minimum")
	}
}

func TestFormBridgeToolParsesAddress(t *testing.T) {
	tool := NewFormBridgeTool()

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"direction": "to_form",
		"extracted": `{}`,
		"address":   "1234 Pine St, Denver, CO 80202",
	}))
	mustNotError(t, result, err)

	var br bridgeResult
	if err := json.Unmarshal([]byte(resultText(result)), &br); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if br.Location == nil || br.Location.City != "Denver" || br.Location.State != "CO" {
		t.Errorf("location = %+v", br.Location)
	}
}

func TestFormBridgeToolBadDirection(t *testing.T) {
	tool := NewFormBridgeTool()

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"direction": "sideways",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for bad direction")
	}
}

// ─── StatsTool ───────────────────────────────────────────────────────────────

func TestStatsTool(t *testing.T) {
	s := newTestStore(t)
	seedMessages(t, s, "proj-1", "sess-1", "one", "two")

	tool := NewStatsTool(s)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "Projects: 1") || !strings.Contains(text, "Messages: 2") {
		t.Errorf("output: %s", text)
	}
}
