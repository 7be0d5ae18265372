package usecase

import (
	"context"
	"log/slog"
	"strings"

	"devsolver/internal/adapter/cache"
	"devsolver/internal/adapter/retriever"
	"devsolver/internal/domain"
	"devsolver/internal/port"
)

// SearchUseCase answers hybrid searches over one technology's documentation.
type SearchUseCase struct {
	store  port.DocumentStore
	engine *retriever.Engine
	cache  *cache.QueryCache // nil disables caching
	topK   int
	logger *slog.Logger
}

var _ port.Searcher = (*SearchUseCase)(nil)

// NewSearchUseCase creates a new search use case.
func NewSearchUseCase(
	store port.DocumentStore,
	engine *retriever.Engine,
	queryCache *cache.QueryCache,
	topK int,
	logger *slog.Logger,
) *SearchUseCase {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchUseCase{
		store:  store,
		engine: engine,
		cache:  queryCache,
		topK:   topK,
		logger: logger,
	}
}

// HybridSearch returns at most topK results for query. Store failures are
// logged and produce an empty result; only context errors are returned.
func (u *SearchUseCase) HybridSearch(
	ctx context.Context,
	query, technology string,
	topK int,
	source domain.SourceLabel,
) ([]domain.ScoredResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || technology == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = u.topK
	}

	key := cache.Key{Technology: technology, Query: query, TopK: topK, Source: source}
	var gen uint64
	if u.cache != nil {
		if results, ok := u.cache.Get(key); ok {
			u.logger.Debug("search cache hit", "technology", technology, "top_k", topK)
			return results, nil
		}
		gen = u.cache.Generation(technology)
	}

	corpus, complete, err := u.loadCorpus(ctx, technology)
	if err != nil {
		return nil, err
	}
	if len(corpus.Chunks) == 0 {
		return nil, nil
	}

	results, err := u.engine.Retrieve(ctx, query, corpus, retriever.Options{TopK: topK, Source: source})
	if err != nil {
		return nil, err
	}

	if u.cache != nil && complete {
		u.cache.Put(key, results, gen)
	}
	return results, nil
}

// loadCorpus reads a snapshot of the technology. complete is false when part
// of the snapshot could not be read and the result should not be cached.
func (u *SearchUseCase) loadCorpus(ctx context.Context, technology string) (retriever.Corpus, bool, error) {
	var corpus retriever.Corpus
	complete := true

	chunks, err := u.store.LoadChunks(ctx, technology, "")
	if err != nil {
		if ctx.Err() != nil {
			return corpus, false, ctx.Err()
		}
		u.logger.Error("failed to load chunks", "technology", technology, "error", err)
		return corpus, false, nil
	}
	corpus.Chunks = chunks
	if len(chunks) == 0 {
		return corpus, false, nil
	}

	sources, err := u.store.LoadSourceMeta(ctx, technology)
	if err != nil {
		if ctx.Err() != nil {
			return corpus, false, ctx.Err()
		}
		u.logger.Warn("failed to load source metadata", "technology", technology, "error", err)
		complete = false
	}
	corpus.Sources = sources

	embeddings, err := u.store.LoadEmbeddings(ctx, technology, "")
	if err != nil {
		if ctx.Err() != nil {
			return corpus, false, ctx.Err()
		}
		u.logger.Warn("failed to load embeddings", "technology", technology, "error", err)
		complete = false
	}
	corpus.Embeddings = embeddings

	return corpus, complete, nil
}

// Technologies lists the technologies with ingested documentation.
func (u *SearchUseCase) Technologies(ctx context.Context) ([]string, error) {
	return u.store.ListTechnologies(ctx)
}

// Stats summarises one technology.
func (u *SearchUseCase) Stats(ctx context.Context, technology string) (domain.StoreStats, error) {
	return u.store.Stats(ctx, technology)
}
