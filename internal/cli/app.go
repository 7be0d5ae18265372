package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"devsolver/config"
	"devsolver/internal/adapter/analyzer"
	"devsolver/internal/adapter/cache"
	"devsolver/internal/adapter/chunker"
	"devsolver/internal/adapter/embedding"
	"devsolver/internal/adapter/fs"
	"devsolver/internal/adapter/generation"
	"devsolver/internal/adapter/ratelimit"
	"devsolver/internal/adapter/retriever"
	"devsolver/internal/adapter/retry"
	"devsolver/internal/adapter/sqlstore"
	"devsolver/internal/adapter/store"
	"devsolver/internal/port"
	"devsolver/internal/usecase"
)

// schemaStore is a DocumentStore that tracks the configuration its corpus
// was built with.
type schemaStore interface {
	port.DocumentStore
	CheckMigration(cfg *config.Config) (*store.MigrationResult, error)
	Migrate(cfg *config.Config) error
	Clear() error
	DropTechnology(ctx context.Context, technology string) error
}

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	store  schemaStore
	cache  *cache.QueryCache // nil when caching is disabled
	walker *fs.Walker
	search *usecase.SearchUseCase
	ingest *usecase.IngestUseCase
	answer *usecase.AnswerUseCase
	dbPath string
	logger *slog.Logger
}

// openApp opens the store at the configured location and wires the use
// cases. When rebuild is true a configuration change clears the corpus;
// otherwise it only produces a warning.
func openApp(rebuild bool) (*app, error) {
	cfg := GetConfig()
	dir := GetRootDir()

	if cfg.Store.Path == "" {
		if err := config.EnsureDataDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create .devsolver directory: %w", err)
		}
	}
	dbPath := cfg.StorePath(dir)

	st, err := openStore(cfg.Store.Backend, dbPath)
	if err != nil {
		return nil, err
	}

	if err := checkSchema(st, cfg, rebuild); err != nil {
		st.Close()
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	generator, err := newGenerator(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	var queryCache *cache.QueryCache
	if cfg.Cache.Size > 0 {
		queryCache = cache.NewQueryCache(cfg.Cache.Size, cfg.Cache.TTL)
	}
	tokenizer := analyzer.NewTokenizer()
	engine := retriever.NewEngine(embedder, tokenizer, cfg.Retrieve.FusionWeight, cfg.Retrieve.TopK,
		retriever.WithLogger(logger))

	chk, err := chunker.NewTextChunker(cfg.Chunk.Size, cfg.Chunk.Overlap)
	if err != nil {
		st.Close()
		return nil, err
	}
	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)

	search := usecase.NewSearchUseCase(st, engine, queryCache, cfg.Retrieve.TopK, logger)
	ingest := usecase.NewIngestUseCase(st, walker, fs.NewLoader(0), chk, embedder,
		usecase.WithFetcher(fs.NewFetcher(30*time.Second)),
		usecase.WithQueryCache(queryCache),
		usecase.WithConcurrency(cfg.Ingest.Concurrency),
		usecase.WithIngestLogger(logger),
	)

	var expander *usecase.ContextExpander
	if cfg.Answer.Neighbors > 0 {
		expander = usecase.NewContextExpander(st, cfg.Answer.Neighbors, logger)
	}
	answer := usecase.NewAnswerUseCase(search, generator,
		usecase.NewContextBuilder(cfg.Answer.ContextChars), expander, logger)

	return &app{
		cfg:    cfg,
		store:  st,
		cache:  queryCache,
		walker: walker,
		search: search,
		ingest: ingest,
		answer: answer,
		dbPath: dbPath,
		logger: logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func openStore(backend, path string) (schemaStore, error) {
	switch backend {
	case "sqlite":
		st, err := sqlstore.NewStore(path, sqlstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	default:
		st, err := store.NewBoltStore(path, store.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open document store: %w", err)
		}
		return st, nil
	}
}

func checkSchema(st schemaStore, cfg *config.Config, rebuild bool) error {
	result, err := st.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}

	switch {
	case result.NeedsRebuild && rebuild:
		fmt.Printf("Store rebuild required: %s\n", result.Reason)
		fmt.Println("Clearing existing corpus...")
		if err := st.Clear(); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
		return st.Migrate(cfg)
	case result.NeedsRebuild:
		logger.Warn("stored corpus was built with a different configuration; re-ingest to refresh it",
			"reason", result.Reason)
	case result.NeedsMigration:
		logger.Debug("running schema migration", "reason", result.Reason)
		if err := st.Migrate(cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// newLimiter builds one limiter per external service from the shared
// rate limit settings.
func newLimiter(name string, cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(name, cfg.RateLimit.CallsPerMinute, cfg.RateLimit.Cooldown(),
		ratelimit.WithLogger(logger))
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Multiplier:  cfg.Retry.Multiplier,
	}
}

func newEmbedder(cfg *config.Config) (port.EmbeddingProvider, error) {
	var inner port.EmbeddingProvider
	var limiter port.Limiter

	switch cfg.Embedding.Provider {
	case "hash":
		inner = embedding.NewHashProvider(cfg.Embedding.Dimension)
	case "openai":
		p, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:    os.Getenv(cfg.Embedding.APIKeyEnv),
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder (set %s): %w", cfg.Embedding.APIKeyEnv, err)
		}
		inner = p
		limiter = newLimiter("embedding", cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}

	return embedding.NewGuarded(inner, limiter,
		embedding.WithCacheSize(cfg.Embedding.CacheSize),
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithRetryPolicy(retryPolicy(cfg)),
		embedding.WithLogger(logger),
	), nil
}

// newGenerator returns nil when generation is disabled or no API key is
// set; answers then explain that no generator is available.
func newGenerator(cfg *config.Config) (port.TextGenerator, error) {
	if cfg.Generation.Provider == "none" {
		return nil, nil
	}

	apiKey := os.Getenv(cfg.Generation.APIKeyEnv)
	if apiKey == "" {
		logger.Warn("text generation disabled: API key not set", "env", cfg.Generation.APIKeyEnv)
		return nil, nil
	}
	g, err := generation.NewOpenAIGenerator(generation.OpenAIConfig{
		APIKey:      apiKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return generation.NewGuarded(g, newLimiter("generation", cfg), retryPolicy(cfg), logger), nil
}
