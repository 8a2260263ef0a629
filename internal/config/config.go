// Package config resolves runtime configuration from the environment.
// Budget thresholds live here as named values injected into the loader and
// compactor at construction, so tests can exercise boundary conditions
// without waiting for real token counts.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the resolved runtime configuration.
type Config struct {
	// DataDir holds the record store and the local session cache.
	DataDir string

	// GeminiAPIKey enables the real summarizer; when empty, compaction
	// always takes the deterministic fallback path.
	GeminiAPIKey string
	Model        string

	// Token budget knobs (see internal/loader).
	TokensPerMessage  int
	ProjectDataTokens int
	SummaryTokens     int
	MaxContextTokens  int
	RecentMessages    int

	// CompactionThreshold is the coarse background-check message count.
	CompactionThreshold int
}

// Load resolves configuration from environment variables, falling back to
// defaults for anything unset.
func Load() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:             envString("ATELIER_DATA_DIR", filepath.Join(home, ".atelier")),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		Model:               os.Getenv("ATELIER_MODEL"),
		TokensPerMessage:    envInt("ATELIER_TOKENS_PER_MESSAGE", 150),
		ProjectDataTokens:   envInt("ATELIER_PROJECT_DATA_TOKENS", 500),
		SummaryTokens:       envInt("ATELIER_SUMMARY_TOKENS", 1000),
		MaxContextTokens:    envInt("ATELIER_MAX_CONTEXT_TOKENS", 30000),
		RecentMessages:      envInt("ATELIER_RECENT_MESSAGES", 10),
		CompactionThreshold: envInt("ATELIER_COMPACTION_THRESHOLD", 50),
	}
}

// CachePath returns the location of the local session cache database.
func (c Config) CachePath() string {
	return filepath.Join(c.DataDir, "session-cache.db")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
