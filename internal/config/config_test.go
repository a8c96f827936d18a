package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "LESSONFORGE_MODEL", "LESSONFORGE_DB", "LESSONFORGE_DB_DRIVER"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "lessonforge" {
		t.Errorf("expected Name=lessonforge, got %s", cfg.Name)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected Provider=anthropic, got %s", cfg.LLM.Provider)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected Driver=sqlite, got %s", cfg.Database.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearLLMEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "lessonforge.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"
	cfg.Lessons.MaxGroupSize = 4

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LLM.Provider != "openai" {
		t.Errorf("expected Provider=openai, got %s", loaded.LLM.Provider)
	}
	if loaded.LLM.APIKey != "sk-test" {
		t.Errorf("expected APIKey=sk-test, got %s", loaded.LLM.APIKey)
	}
	if loaded.Lessons.MaxGroupSize != 4 {
		t.Errorf("expected MaxGroupSize=4, got %d", loaded.Lessons.MaxGroupSize)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearLLMEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analyzer.AdvanceThreshold != 90 {
		t.Errorf("expected default advance threshold, got %v", cfg.Analyzer.AdvanceThreshold)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearLLMEnv(t)

	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("analyzer:\n  trend_delta: 8\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analyzer.TrendDelta != 8 {
		t.Errorf("expected trend_delta=8, got %v", cfg.Analyzer.TrendDelta)
	}
	if cfg.Analyzer.Window != 10 {
		t.Errorf("expected default window=10, got %d", cfg.Analyzer.Window)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("llm: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid provider", func(c *Config) { c.LLM.Provider = "invalid-provider" }},
		{"invalid driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = " " }},
		{"threshold order", func(c *Config) { c.Analyzer.MaintainThreshold = 95 }},
		{"duration bounds", func(c *Config) { c.Lessons.MaxDuration = 1 }},
		{"zero window", func(c *Config) { c.Analyzer.Window = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_RequireAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.RequireAPIKey(); err == nil {
		t.Error("expected error for missing API key")
	}
	cfg.LLM.APIKey = "test-key"
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.GetLLMTimeout() != 120*time.Second {
		t.Errorf("GetLLMTimeout = %v", cfg.GetLLMTimeout())
	}
	if cfg.GetCleanupAfter() != 720*time.Hour {
		t.Errorf("GetCleanupAfter = %v", cfg.GetCleanupAfter())
	}

	cfg.LLM.Timeout = "not-a-duration"
	cfg.LLM.RetryDelay = ""
	cfg.Queue.CleanupAfter = "soon"
	if cfg.GetLLMTimeout() != 120*time.Second {
		t.Error("GetLLMTimeout should fall back on parse error")
	}
	if cfg.GetRetryDelay() != time.Second {
		t.Error("GetRetryDelay should fall back on parse error")
	}
	if cfg.GetCleanupAfter() != 30*24*time.Hour {
		t.Error("GetCleanupAfter should fall back on parse error")
	}
}
