package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"ATELIER_DATA_DIR", "GEMINI_API_KEY", "ATELIER_MODEL",
		"ATELIER_TOKENS_PER_MESSAGE", "ATELIER_MAX_CONTEXT_TOKENS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.TokensPerMessage != 150 || cfg.ProjectDataTokens != 500 {
		t.Errorf("token defaults: %+v", cfg)
	}
	if cfg.MaxContextTokens != 30000 || cfg.RecentMessages != 10 {
		t.Errorf("budget defaults: %+v", cfg)
	}
	if cfg.CompactionThreshold != 50 {
		t.Errorf("compaction threshold = %d", cfg.CompactionThreshold)
	}
	if cfg.DataDir == "" {
		t.Error("data dir should default under the home directory")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ATELIER_DATA_DIR", "/tmp/atelier-test")
	t.Setenv("ATELIER_MAX_CONTEXT_TOKENS", "5000")
	t.Setenv("ATELIER_MODEL", "gemini-2.5-pro")

	cfg := Load()
	if cfg.DataDir != "/tmp/atelier-test" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.MaxContextTokens != 5000 {
		t.Errorf("max context tokens = %d", cfg.MaxContextTokens)
	}
	if cfg.Model != "gemini-2.5-pro" {
		t.Errorf("model = %q", cfg.Model)
	}
}

func TestInvalidIntFallsBack(t *testing.T) {
	t.Setenv("ATELIER_MAX_CONTEXT_TOKENS", "a lot")
	if cfg := Load(); cfg.MaxContextTokens != 30000 {
		t.Errorf("max context tokens = %d, want default", cfg.MaxContextTokens)
	}

	t.Setenv("ATELIER_MAX_CONTEXT_TOKENS", "-5")
	if cfg := Load(); cfg.MaxContextTokens != 30000 {
		t.Errorf("negative value should fall back, got %d", cfg.MaxContextTokens)
	}
}

func TestCachePath(t *testing.T) {
	cfg := Config{DataDir: "/data/atelier"}
	want := filepath.Join("/data/atelier", "session-cache.db")
	if got := cfg.CachePath(); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
}
