package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"devsolver/config"
	"devsolver/internal/adapter/analyzer"
	"devsolver/internal/adapter/embedding"
	"devsolver/internal/adapter/retriever"
	"devsolver/internal/adapter/sqlstore"
	"devsolver/internal/adapter/store"
	"devsolver/internal/domain"
	"devsolver/internal/logging"
	"devsolver/internal/port"
)

func main() {
	dir := flag.String("dir", ".", "Directory holding devsolver.yaml and .devsolver/")
	tech := flag.String("tech", "", "Technology to search")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 5, "Number of results")
	flag.Parse()

	if *query == "" || *tech == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -tech pandas -q \"query\"")
		fmt.Println("\nCompares, on the stored corpus:")
		fmt.Println("  1. Lexical-only ranking")
		fmt.Println("  2. Vector-only ranking")
		fmt.Println("  3. Hybrid ranking at the configured fusion weight")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err == nil {
		_ = config.LoadDotEnv(*dir)
		err = cfg.ApplyEnv()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, os.Stderr)

	st, err := openStore(cfg, *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	corpus, err := loadCorpus(ctx, st, *tech)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading corpus: %v\n", err)
		os.Exit(1)
	}
	if len(corpus.Chunks) == 0 {
		fmt.Fprintf(os.Stderr, "No chunks stored for %q - run 'devsolver ingest' first\n", *tech)
		os.Exit(1)
	}

	embedder, err := setupEmbedding(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Semantic search not available: %v\n", err)
		os.Exit(1)
	}
	guarded := embedding.NewGuarded(embedder, nil, embedding.WithLogger(logger))

	fmt.Println("HYBRID RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Technology: %s\n", *tech)
	fmt.Printf("Chunks: %d, embeddings: %d (%d missing)\n",
		len(corpus.Chunks), len(corpus.Embeddings), missingEmbeddings(corpus))
	fmt.Printf("Model: %s (%s), dimension %d\n", guarded.ModelName(), cfg.Embedding.Provider, guarded.Dimension())
	fmt.Printf("Query: %q\n\n", *query)

	tokenizer := analyzer.NewTokenizer()
	strategies := []struct {
		name   string
		weight float64
	}{
		{"LEXICAL", 0},
		{"VECTOR", 1},
		{fmt.Sprintf("HYBRID (w=%.2f)", cfg.Retrieve.FusionWeight), cfg.Retrieve.FusionWeight},
	}

	rankings := make([][]domain.ScoredResult, len(strategies))
	for i, s := range strategies {
		engine := retriever.NewEngine(guarded, tokenizer, s.weight, *topK, retriever.WithLogger(logger))

		start := time.Now()
		results, err := engine.Retrieve(ctx, *query, corpus, retriever.Options{TopK: *topK})
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		rankings[i] = results

		fmt.Println(strings.Repeat("-", 70))
		fmt.Printf("%s: %d results in %s\n\n", s.name, len(results), elapsed.Round(time.Microsecond))
		for j, r := range results {
			preview := []rune(strings.ReplaceAll(r.Chunk.Content, "\n", " "))
			if len(preview) > 120 {
				preview = append(preview[:120], []rune("...")...)
			}
			fmt.Printf("%d. [%.3f %s] %s #%d\n", j+1, r.Score, r.SourceLabel, title(r), r.Chunk.Ordinal)
			fmt.Printf("   %s\n", string(preview))
		}
		fmt.Println()
	}

	hybrid := rankings[len(rankings)-1]
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("OVERLAP WITH HYBRID:")
	for i, s := range strategies[:len(strategies)-1] {
		fmt.Printf("  %-8s %d/%d\n", s.name, overlap(rankings[i], hybrid), len(hybrid))
	}
}

func openStore(cfg *config.Config, dir string) (port.DocumentStore, error) {
	path := cfg.StorePath(dir)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no store at %s: %w", path, err)
	}
	if cfg.Store.Backend == "sqlite" {
		return sqlstore.NewStore(path)
	}
	return store.NewBoltStore(path)
}

func loadCorpus(ctx context.Context, st port.DocumentStore, tech string) (retriever.Corpus, error) {
	var corpus retriever.Corpus
	var err error
	if corpus.Chunks, err = st.LoadChunks(ctx, tech, ""); err != nil {
		return corpus, err
	}
	if corpus.Embeddings, err = st.LoadEmbeddings(ctx, tech, ""); err != nil {
		return corpus, err
	}
	corpus.Sources, err = st.LoadSourceMeta(ctx, tech)
	return corpus, err
}

func setupEmbedding(cfg *config.Config) (port.EmbeddingProvider, error) {
	switch cfg.Embedding.Provider {
	case "hash":
		return embedding.NewHashProvider(cfg.Embedding.Dimension), nil
	case "openai":
		return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:    os.Getenv(cfg.Embedding.APIKeyEnv),
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}
}

func missingEmbeddings(corpus retriever.Corpus) int {
	missing := 0
	for _, c := range corpus.Chunks {
		if vec, ok := corpus.Embeddings[c.ID]; !ok || vec.IsZero() {
			missing++
		}
	}
	return missing
}

func overlap(a, b []domain.ScoredResult) int {
	seen := make(map[string]bool, len(b))
	for _, r := range b {
		seen[r.Chunk.ID] = true
	}
	n := 0
	for _, r := range a {
		if seen[r.Chunk.ID] {
			n++
		}
	}
	return n
}

func title(r domain.ScoredResult) string {
	if r.Source != nil && r.Source.Title != "" {
		return r.Source.Title
	}
	return r.Chunk.DocumentID
}
