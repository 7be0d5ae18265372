package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate. It is fatal at startup.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for devsolver.
type Config struct {
	Chunk      ChunkConfig      `yaml:"chunk" toml:"chunk"`
	Retrieve   RetrieveConfig   `yaml:"retrieve" toml:"retrieve"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
	Retry      RetryConfig      `yaml:"retry" toml:"retry"`
	Embedding  EmbeddingConfig  `yaml:"embedding" toml:"embedding"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest" toml:"ingest"`
	Store      StoreConfig      `yaml:"store" toml:"store"`
	Answer     AnswerConfig     `yaml:"answer" toml:"answer"`
	Cache      CacheConfig      `yaml:"cache" toml:"cache"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ChunkConfig holds chunking configuration, in characters.
type ChunkConfig struct {
	Size    int `yaml:"size" toml:"size" validate:"gt=0"`
	Overlap int `yaml:"overlap" toml:"overlap" validate:"gte=0,ltfield=Size"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK         int     `yaml:"top_k" toml:"top_k" validate:"gt=0"`
	FusionWeight float64 `yaml:"fusion_weight" toml:"fusion_weight" validate:"gte=0,lte=1"` // 1 = vector only, 0 = lexical only
}

// RateLimitConfig applies to each limiter instance (generation and embedding).
type RateLimitConfig struct {
	CallsPerMinute  int     `yaml:"calls_per_minute" toml:"calls_per_minute" validate:"gt=0"`
	CooldownSeconds float64 `yaml:"cooldown_seconds" toml:"cooldown_seconds" validate:"gte=0"`
}

// Cooldown returns the cooldown as a duration.
func (c RateLimitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds * float64(time.Second))
}

// RetryConfig configures the provider retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts" validate:"gt=0"`
	BaseDelay   time.Duration `yaml:"base_delay" toml:"base_delay" validate:"gte=0"`
	MaxDelay    time.Duration `yaml:"max_delay" toml:"max_delay" validate:"gte=0"`
	Multiplier  float64       `yaml:"multiplier" toml:"multiplier" validate:"gte=1"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" toml:"provider" validate:"oneof=openai hash"`
	Model     string `yaml:"model" toml:"model"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"` // Environment variable for API key
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	Dimension int    `yaml:"dimension" toml:"dimension" validate:"gt=0"`
	BatchSize int    `yaml:"batch_size" toml:"batch_size" validate:"gt=0"`
	CacheSize int    `yaml:"cache_size" toml:"cache_size" validate:"gte=0"`
}

// GenerationConfig holds text generation configuration.
type GenerationConfig struct {
	Provider    string  `yaml:"provider" toml:"provider" validate:"oneof=openai none"`
	Model       string  `yaml:"model" toml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env" toml:"api_key_env"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	Temperature float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
}

// IngestConfig holds documentation discovery configuration.
type IngestConfig struct {
	Includes    []string `yaml:"includes" toml:"includes"`
	Excludes    []string `yaml:"excludes" toml:"excludes"`
	Concurrency int      `yaml:"concurrency" toml:"concurrency" validate:"gt=0"`
}

// StoreConfig holds document store configuration.
type StoreConfig struct {
	Backend string `yaml:"backend" toml:"backend" validate:"oneof=bolt sqlite"`
	Path    string `yaml:"path" toml:"path"` // empty means .devsolver/store.db under the root dir
}

// AnswerConfig controls how retrieved chunks become generation context.
type AnswerConfig struct {
	ContextChars int `yaml:"context_chars" toml:"context_chars" validate:"gt=0"`
	Neighbors    int `yaml:"neighbors" toml:"neighbors" validate:"gte=0"`
}

// CacheConfig holds query result cache configuration.
type CacheConfig struct {
	Size int           `yaml:"size" toml:"size" validate:"gte=0"` // 0 disables the cache
	TTL  time.Duration `yaml:"ttl" toml:"ttl" validate:"gte=0"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunk: ChunkConfig{
			Size:    1000,
			Overlap: 200,
		},
		Retrieve: RetrieveConfig{
			TopK:         5,
			FusionWeight: 0.7,
		},
		RateLimit: RateLimitConfig{
			CallsPerMinute:  60,
			CooldownSeconds: 1.0,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    4 * time.Second,
			Multiplier:  2,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 768,
			BatchSize: 3,
			CacheSize: 1024,
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.1,
		},
		Ingest: IngestConfig{
			Includes:    []string{"**/*.md", "**/*.txt", "**/*.rst", "**/*.html", "**/*.pdf"},
			Excludes:    []string{"**/node_modules/**", "**/.git/**", "**/.devsolver/**"},
			Concurrency: 4,
		},
		Store: StoreConfig{
			Backend: "bolt",
		},
		Answer: AnswerConfig{
			ContextChars: 12000,
			Neighbors:    1,
		},
		Cache: CacheConfig{
			Size: 256,
			TTL:  5 * time.Minute,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// configNames lists the files LoadFromDir looks for, in order.
var configNames = []string{
	"devsolver.yaml",
	"devsolver.toml",
	filepath.Join(".devsolver", "config.yaml"),
	filepath.Join(".devsolver", "config.toml"),
}

// LoadFromDir loads the first configuration file found in dir.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// LoadDotEnv loads dir/.env into the process environment if present.
// Variables already set are not overridden.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides configuration values from environment variables.
func (c *Config) ApplyEnv() error {
	ints := map[string]*int{
		"CHUNK_SIZE":       &c.Chunk.Size,
		"CHUNK_OVERLAP":    &c.Chunk.Overlap,
		"TOP_K_RETRIEVAL":  &c.Retrieve.TopK,
		"RATE_LIMIT_CALLS": &c.RateLimit.CallsPerMinute,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, v)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"SEMANTIC_WEIGHT":     &c.Retrieve.FusionWeight,
		"RATE_LIMIT_COOLDOWN": &c.RateLimit.CooldownSeconds,
	}
	for name, dst := range floats {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, name, v)
		}
		*dst = f
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("COMPLETION_MODEL"); v != "" {
		c.Generation.Model = v
	}
	return nil
}

// Validate checks the configuration. Any failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", e.Namespace(), e.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath returns the path to the document store under dir unless the
// configuration names one explicitly.
func (c *Config) StorePath(dir string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(dir, ".devsolver", "store.db")
}

// EnsureDataDir ensures the .devsolver directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".devsolver"), 0755)
}
