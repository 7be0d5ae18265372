package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"devsolver/internal/adapter/analyzer"
	"devsolver/internal/adapter/cache"
	"devsolver/internal/adapter/chunker"
	"devsolver/internal/adapter/embedding"
	"devsolver/internal/adapter/fs"
	"devsolver/internal/adapter/memstore"
	"devsolver/internal/adapter/retriever"
	"devsolver/internal/domain"
	"devsolver/internal/port"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore wraps a DocumentStore, counting chunk loads and optionally
// failing reads.
type countingStore struct {
	port.DocumentStore
	loads   atomic.Int32
	loadErr error
	metaErr error

	// onLoadEmbeddings runs once, inside the next LoadEmbeddings call.
	onLoadEmbeddings func()
}

func (s *countingStore) LoadEmbeddings(ctx context.Context, tech, documentID string) (map[string]domain.EmbeddingVector, error) {
	if hook := s.onLoadEmbeddings; hook != nil {
		s.onLoadEmbeddings = nil
		hook()
	}
	return s.DocumentStore.LoadEmbeddings(ctx, tech, documentID)
}

func (s *countingStore) LoadChunks(ctx context.Context, tech, documentID string) ([]domain.Chunk, error) {
	s.loads.Add(1)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.DocumentStore.LoadChunks(ctx, tech, documentID)
}

func (s *countingStore) LoadSourceMeta(ctx context.Context, tech string) (map[string]domain.SourceMeta, error) {
	if s.metaErr != nil {
		return nil, s.metaErr
	}
	return s.DocumentStore.LoadSourceMeta(ctx, tech)
}

type harness struct {
	store    *countingStore
	embedder port.EmbeddingProvider
	cache    *cache.QueryCache
	search   *SearchUseCase
	ingest   *IngestUseCase
}

func newHarness(t *testing.T, embedder port.EmbeddingProvider) *harness {
	t.Helper()

	if embedder == nil {
		embedder = embedding.NewHashProvider(64)
	}
	st := &countingStore{DocumentStore: memstore.NewMemoryStore()}
	ch, err := chunker.NewTextChunker(200, 40)
	require.NoError(t, err)

	qc := cache.NewQueryCache(16, time.Minute)
	engine := retriever.NewEngine(embedder, analyzer.NewTokenizer(), 0.5, 3, retriever.WithLogger(quietLogger()))

	return &harness{
		store:    st,
		embedder: embedder,
		cache:    qc,
		search:   NewSearchUseCase(st, engine, qc, 3, quietLogger()),
		ingest: NewIngestUseCase(st, fs.NewWalker(nil, nil), fs.NewLoader(0), ch, embedder,
			WithQueryCache(qc),
			WithIngestLogger(quietLogger())),
	}
}

func (h *harness) add(t *testing.T, tech, title string, label domain.SourceLabel, content string) domain.SourceMeta {
	t.Helper()
	meta, err := h.ingest.IngestText(context.Background(), tech, domain.SourceMeta{Title: title, Label: label}, content)
	require.NoError(t, err)
	return meta
}

func seedPandas(t *testing.T, h *harness) {
	t.Helper()
	h.add(t, "python", "pandas merge", domain.SourceOfficial,
		"Use pandas merge to join two DataFrames on a key column.")
	h.add(t, "python", "asyncio tasks", domain.SourceOfficial,
		"Create asyncio tasks with create_task and await them with gather.")
	h.add(t, "python", "merge tips", domain.SourceCommunity,
		"A community answer: merge DataFrames with how='left' to keep unmatched rows.")
}
