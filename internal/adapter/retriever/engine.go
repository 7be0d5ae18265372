package retriever

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"devsolver/internal/domain"
	"devsolver/internal/port"
)

const defaultFusionWeight = 0.7

// Corpus is a point-in-time snapshot of one technology's documentation.
type Corpus struct {
	Chunks     []domain.Chunk
	Embeddings map[string]domain.EmbeddingVector
	Sources    map[string]domain.SourceMeta
}

// Options controls a single retrieval.
type Options struct {
	TopK   int                // <= 0 uses the engine default
	Source domain.SourceLabel // empty searches every label
}

// Engine combines lexical and vector ranking over a corpus snapshot.
type Engine struct {
	lexical  *LexicalScorer
	vector   *VectorScorer
	embedder port.EmbeddingProvider
	weight   float64 // Weight for vector results (0-1)
	topK     int
	logger   *slog.Logger

	degradedLog rate.Sometimes
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a retrieval engine. The embedder is expected to already be
// rate limited; a nil embedder makes every search lexical-only.
func NewEngine(
	embedder port.EmbeddingProvider,
	tokenizer port.Tokenizer,
	weight float64,
	topK int,
	opts ...EngineOption,
) *Engine {
	if weight < 0 || weight > 1 {
		weight = defaultFusionWeight
	}
	if topK <= 0 {
		topK = 5
	}

	e := &Engine{
		lexical:     NewLexicalScorer(tokenizer),
		vector:      NewVectorScorer(),
		embedder:    embedder,
		weight:      weight,
		topK:        topK,
		logger:      slog.Default(),
		degradedLog: rate.Sometimes{Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weight returns the vector weight used for fusion.
func (e *Engine) Weight() float64 { return e.weight }

// Retrieve ranks the corpus for the query. Embedding problems never fail the
// call: the ranking degrades to lexical-only instead. The only error returned
// is the context's.
func (e *Engine) Retrieve(ctx context.Context, query string, corpus Corpus, opts Options) ([]domain.ScoredResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = e.topK
	}

	chunks := FilterBySource(corpus.Chunks, corpus.Sources, opts.Source)
	if len(chunks) == 0 {
		return nil, nil
	}

	var (
		lexical  []domain.ScoredChunk
		vector   []domain.ScoredChunk
		degraded string
	)

	var g errgroup.Group
	g.Go(func() error {
		lexical = e.lexical.Score(query, chunks)
		return nil
	})
	g.Go(func() error {
		if e.embedder == nil {
			degraded = "no embedding provider"
			return nil
		}
		if !hasEmbeddings(chunks, corpus.Embeddings) {
			degraded = "no chunk embeddings"
			return nil
		}

		queryVec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			degraded = "query embedding failed: " + err.Error()
			return nil
		}
		if queryVec.IsZero() {
			degraded = "query embedding unavailable"
			return nil
		}

		vector = e.vector.Score(queryVec, chunks, corpus.Embeddings)
		if len(vector) == 0 {
			degraded = "no comparable chunk embeddings"
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	weight := e.weight
	if degraded != "" {
		e.logDegraded(degraded, len(chunks))
		weight = 0
		vector = nil
	}

	results := Fuse(lexical, vector, weight, topK)
	for i := range results {
		if meta, ok := corpus.Sources[results[i].Chunk.DocumentID]; ok {
			m := meta
			results[i].SourceLabel = m.Label
			results[i].Source = &m
		}
	}

	return results, nil
}

func (e *Engine) logDegraded(reason string, chunks int) {
	warned := false
	e.degradedLog.Do(func() {
		e.logger.Warn("hybrid search degraded to lexical ranking", "reason", reason, "chunks", chunks)
		warned = true
	})
	if !warned {
		e.logger.Debug("hybrid search degraded to lexical ranking", "reason", reason, "chunks", chunks)
	}
}

// FilterBySource keeps chunks whose document carries the given label. Chunks
// of documents without metadata are dropped when filtering.
func FilterBySource(chunks []domain.Chunk, sources map[string]domain.SourceMeta, label domain.SourceLabel) []domain.Chunk {
	if label == "" {
		return chunks
	}
	filtered := make([]domain.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if meta, ok := sources[chunk.DocumentID]; ok && meta.Label == label {
			filtered = append(filtered, chunk)
		}
	}
	return filtered
}

func hasEmbeddings(chunks []domain.Chunk, embeddings map[string]domain.EmbeddingVector) bool {
	if len(embeddings) == 0 {
		return false
	}
	for _, chunk := range chunks {
		if _, ok := embeddings[chunk.ID]; ok {
			return true
		}
	}
	return false
}
