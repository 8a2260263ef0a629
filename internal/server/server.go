// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools that depend on abstractions. No business
// logic lives here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/knearme/atelier/internal/cache"
	"github.com/knearme/atelier/internal/compact"
	"github.com/knearme/atelier/internal/config"
	"github.com/knearme/atelier/internal/ctxtools"
	"github.com/knearme/atelier/internal/llm"
	"github.com/knearme/atelier/internal/loader"
	"github.com/knearme/atelier/internal/memory"
	"github.com/knearme/atelier/internal/prompts"
	"github.com/knearme/atelier/internal/resources"
	"github.com/knearme/atelier/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function closes the record store and the local
// session cache and must be called on shutdown (typically via defer).
// It is always non-nil and safe to call even on partial init failure.
func New(cfg config.Config) (*server.MCPServer, func(), error) {
	// --- Create shared dependencies ---

	st, err := store.New(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		return nil, noop, fmt.Errorf("creating record store: %w", err)
	}

	closeStore := func() {
		if err := st.Close(); err != nil {
			log.Printf("WARNING: record store close: %v", err)
		}
	}

	gen := newGenerator(cfg)

	ldr := loader.New(st, loader.Config{
		TokensPerMessage:  cfg.TokensPerMessage,
		ProjectDataTokens: cfg.ProjectDataTokens,
		SummaryTokens:     cfg.SummaryTokens,
		MaxContextTokens:  cfg.MaxContextTokens,
		RecentMessages:    cfg.RecentMessages,
	})
	compactor := compact.New(gen, st, compact.Config{
		CompactionThreshold: cfg.CompactionThreshold,
	})
	mem := memory.New(st)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"atelier",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register context tools ---

	loadTool := ctxtools.NewLoadTool(ldr)
	s.AddTool(loadTool.Definition(), loadTool.Handle)

	compactTool := ctxtools.NewCompactTool(st, compactor, mem)
	s.AddTool(compactTool.Definition(), compactTool.Handle)

	sessionContextTool := ctxtools.NewSessionContextTool(mem)
	s.AddTool(sessionContextTool.Definition(), sessionContextTool.Handle)

	memoryUpdateTool := ctxtools.NewMemoryUpdateTool(mem)
	s.AddTool(memoryUpdateTool.Definition(), memoryUpdateTool.Handle)

	messageAppendTool := ctxtools.NewMessageAppendTool(st, ldr)
	s.AddTool(messageAppendTool.Definition(), messageAppendTool.Handle)

	formBridgeTool := ctxtools.NewFormBridgeTool()
	s.AddTool(formBridgeTool.Definition(), formBridgeTool.Handle)

	statsTool := ctxtools.NewStatsTool(st)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	// --- Register checkpoint tools ---
	//
	// The local cache is an independent subsystem: if it fails to open,
	// context tools continue working. We log a warning and skip checkpoint
	// tool registration; resume just falls back to the record store.

	cleanup := closeStore
	localCache, cacheErr := cache.Open(cfg.CachePath())
	if cacheErr != nil {
		log.Printf("WARNING: session cache disabled: %v", cacheErr)
	} else {
		cleanup = func() {
			if err := localCache.Close(); err != nil {
				log.Printf("WARNING: session cache close: %v", err)
			}
			closeStore()
		}

		checkpointSave := ctxtools.NewCheckpointSaveTool(localCache)
		s.AddTool(checkpointSave.Definition(), checkpointSave.Handle)

		checkpointGet := ctxtools.NewCheckpointGetTool(localCache)
		s.AddTool(checkpointGet.Definition(), checkpointGet.Handle)
	}

	// --- Register prompts ---

	resumePrompt := prompts.NewResumePrompt()
	s.AddPrompt(resumePrompt.Definition(), resumePrompt.Handle)

	wrapUpPrompt := prompts.NewWrapUpPrompt()
	s.AddPrompt(wrapUpPrompt.Definition(), wrapUpPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(st)
	s.AddResource(resourceHandler.StatsResource(), resourceHandler.HandleStats)

	return s, cleanup, nil
}

// newGenerator resolves the summarizer backend. Without an API key every
// Generate call errors, which the compactor absorbs by taking its
// deterministic fallback path, so the server stays functional offline.
func newGenerator(cfg config.Config) llm.Generator {
	if cfg.GeminiAPIKey == "" {
		log.Printf("WARNING: GEMINI_API_KEY not set, compaction uses fallback summaries")
		return llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("llm: no generation backend configured")
		})
	}
	gem, err := llm.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		log.Printf("WARNING: gemini client init failed, compaction uses fallback summaries: %v", err)
		return llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
			return "", fmt.Errorf("llm: backend unavailable: %w", err)
		})
	}
	return gem
}

// noop is a no-op cleanup function used before any resource is open.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use the context engine effectively.
func serverInstructions() string {
	return `You have access to Atelier, a conversational context and memory engine
for project-authoring assistants.

## Turn lifecycle

1. At the start of each turn, call ctx_load with the project_id and
   session_id. It decides, based on an estimated token budget, whether
   to return the full message history or a compacted summary plus the
   most recent messages. Use exactly what it returns as conversational
   context; do not re-fetch history yourself.
2. After each exchange, persist both turns with ctx_message_append. Its
   response tells you when the session has outgrown the budget.
3. When a session ends, or ctx_message_append suggests it, call
   ctx_compact. It summarizes the transcript, extracts key facts, and
   folds them into the project's long-lived memory. Compaction never
   fails: without a summarizer it produces a deterministic fallback.

## Starting fresh conversations

When a new session begins for a project with history, call
ctx_session_context first. It returns prior session summaries,
deduplicated key facts, and stored preferences formatted for direct
inclusion in your prompt. This is how you avoid re-asking what the
user already told you in earlier sessions.

## Long-lived memory

Call ctx_memory_update whenever the user states a durable preference or
fact worth remembering across sessions (preferred tone, materials they
favor, topics to avoid). Facts are deduplicated by exact content, so
saving the same fact twice is harmless.

## Switching between conversation and form

The user can author a project either conversationally or through a
structured form. When they switch, call ctx_form_bridge to convert the
accumulated data to the other modality; never make the user re-enter a
field the other modality already captured. The result includes a
completeness score and whether enough data exists to skip the basics.

## Checkpoints

Call ctx_checkpoint_save after meaningful progress (fields extracted,
phase changes, drafts). Saves merge into the existing checkpoint, so
partial patches are safe. On resume, ctx_checkpoint_get restores the
latest state by session, by project, or most-recent overall. The cache
is local and not authoritative: if it disagrees with the server-side
session, trust the session for everything except unsent drafts.`
}
