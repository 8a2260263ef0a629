// Atelier: conversational context and memory MCP server.
//
// Gives project-authoring assistants a budget-aware context window,
// session compaction, cross-session memory, and a bridge between
// conversational and form-based authoring.
//
// Usage:
//
//	atelier serve    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knearme/atelier/internal/config"
	"github.com/knearme/atelier/internal/llm"
	atelierserver "github.com/knearme/atelier/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("atelier v%s\n", atelierserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	// Optional .env for local development; the environment wins.
	_ = godotenv.Load()

	s, cleanup, err := atelierserver.New(config.Load())
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Stdout carries MCP frames; everything else in this process logs
	// to stderr.
	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Atelier v%s — conversational context & memory MCP server

Usage:
  atelier serve    Start the MCP server (stdio transport)

Configuration (environment, or .env in the working directory):
  ATELIER_DATA_DIR    Data directory (default: ~/.atelier)
  GEMINI_API_KEY      Enables LLM-backed compaction summaries
  ATELIER_MODEL       Generation model (default: %s)

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "atelier": {
        "command": "atelier",
        "args": ["serve"]
      }
    }
  }
`, atelierserver.Version, llm.DefaultModel)
}
