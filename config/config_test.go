package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chunk.Size != 1000 {
		t.Errorf("expected Chunk.Size=1000, got %d", cfg.Chunk.Size)
	}
	if cfg.Chunk.Overlap != 200 {
		t.Errorf("expected Chunk.Overlap=200, got %d", cfg.Chunk.Overlap)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.FusionWeight != 0.7 {
		t.Errorf("expected FusionWeight=0.7, got %f", cfg.Retrieve.FusionWeight)
	}
	if cfg.RateLimit.CallsPerMinute != 60 {
		t.Errorf("expected CallsPerMinute=60, got %d", cfg.RateLimit.CallsPerMinute)
	}
	if cfg.RateLimit.Cooldown() != time.Second {
		t.Errorf("expected 1s cooldown, got %v", cfg.RateLimit.Cooldown())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "devsolver.yaml")

	content := `
chunk:
  size: 500
  overlap: 50
retrieve:
  top_k: 10
  fusion_weight: 0.5
retry:
  base_delay: 250ms
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunk.Size != 500 {
		t.Errorf("expected Chunk.Size=500, got %d", cfg.Chunk.Size)
	}
	if cfg.Chunk.Overlap != 50 {
		t.Errorf("expected Chunk.Overlap=50, got %d", cfg.Chunk.Overlap)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Errorf("expected TopK=10, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("expected BaseDelay=250ms, got %v", cfg.Retry.BaseDelay)
	}
	// untouched sections keep their defaults
	if cfg.RateLimit.CallsPerMinute != 60 {
		t.Errorf("expected CallsPerMinute=60, got %d", cfg.RateLimit.CallsPerMinute)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "devsolver.toml")

	content := `
[chunk]
size = 600
overlap = 60

[store]
backend = "sqlite"

[ingest]
includes = ["**/*.md"]
concurrency = 2
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunk.Size != 600 || cfg.Chunk.Overlap != 60 {
		t.Errorf("expected chunk 600/60, got %d/%d", cfg.Chunk.Size, cfg.Chunk.Overlap)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("expected sqlite backend, got %s", cfg.Store.Backend)
	}
	if len(cfg.Ingest.Includes) != 1 || cfg.Ingest.Includes[0] != "**/*.md" {
		t.Errorf("expected includes override, got %v", cfg.Ingest.Includes)
	}
	if cfg.Answer.ContextChars != 12000 {
		t.Errorf("expected default ContextChars=12000, got %d", cfg.Answer.ContextChars)
	}
}

func TestLoad_Malformed(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "devsolver.toml")
	if err := os.WriteFile(configPath, []byte("[chunk\nsize = "), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected parse error for malformed TOML")
	}
}

func TestLoadFromDir_PrefersYAML(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "devsolver.yaml"), []byte("retrieve:\n  top_k: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "devsolver.toml"), []byte("[retrieve]\ntop_k = 9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieve.TopK != 7 {
		t.Errorf("expected TopK=7 from devsolver.yaml, got %d", cfg.Retrieve.TopK)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".devsolver"), 0755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".devsolver", "config.yaml")

	content := `
rate_limit:
  calls_per_minute: 15
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RateLimit.CallsPerMinute != 15 {
		t.Errorf("expected CallsPerMinute=15, got %d", cfg.RateLimit.CallsPerMinute)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"overlap equals size", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }, true},
		{"overlap exceeds size", func(c *Config) { c.Chunk.Size = 100; c.Chunk.Overlap = 150 }, true},
		{"zero size", func(c *Config) { c.Chunk.Size = 0; c.Chunk.Overlap = 0 }, true},
		{"negative overlap", func(c *Config) { c.Chunk.Overlap = -1 }, true},
		{"no overlap", func(c *Config) { c.Chunk.Overlap = 0 }, false},
		{"weight above one", func(c *Config) { c.Retrieve.FusionWeight = 1.5 }, true},
		{"weight zero", func(c *Config) { c.Retrieve.FusionWeight = 0 }, false},
		{"zero capacity", func(c *Config) { c.RateLimit.CallsPerMinute = 0 }, true},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "vertex" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"sqlite backend", func(c *Config) { c.Store.Backend = "sqlite" }, false},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, true},
		{"zero context budget", func(c *Config) { c.Answer.ContextChars = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "800")
	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("SEMANTIC_WEIGHT", "0.25")
	t.Setenv("RATE_LIMIT_COOLDOWN", "0.5")
	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Chunk.Size != 800 || cfg.Chunk.Overlap != 100 {
		t.Errorf("expected chunk 800/100, got %d/%d", cfg.Chunk.Size, cfg.Chunk.Overlap)
	}
	if cfg.Retrieve.FusionWeight != 0.25 {
		t.Errorf("expected FusionWeight=0.25, got %f", cfg.Retrieve.FusionWeight)
	}
	if cfg.RateLimit.Cooldown() != 500*time.Millisecond {
		t.Errorf("expected 500ms cooldown, got %v", cfg.RateLimit.Cooldown())
	}
	if cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("expected model override, got %s", cfg.Embedding.Model)
	}
}

func TestApplyEnv_Malformed(t *testing.T) {
	t.Setenv("TOP_K_RETRIEVAL", "five")

	err := DefaultConfig().ApplyEnv()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("DEVSOLVER_TEST_KEY=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("DEVSOLVER_TEST_KEY") })

	if err := LoadDotEnv(tmpDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("DEVSOLVER_TEST_KEY"); got != "from-dotenv" {
		t.Errorf("expected value from .env, got %q", got)
	}

	if err := LoadDotEnv(t.TempDir()); err != nil {
		t.Errorf("missing .env should not fail, got %v", err)
	}
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	path := cfg.StorePath("/home/user/project")
	expected := filepath.Join("/home/user/project", ".devsolver", "store.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}

	cfg.Store.Path = "/var/lib/devsolver.db"
	if got := cfg.StorePath("/ignored"); got != "/var/lib/devsolver.db" {
		t.Errorf("expected explicit path, got %s", got)
	}
}
