//go:build js && wasm

// Command wasm exposes in-memory ingest and hybrid search to JavaScript.
// Embeddings come from the local hash provider, so no network access is
// needed.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"syscall/js"

	"devsolver/internal/adapter/analyzer"
	"devsolver/internal/adapter/cache"
	"devsolver/internal/adapter/chunker"
	"devsolver/internal/adapter/embedding"
	"devsolver/internal/adapter/memstore"
	"devsolver/internal/adapter/retriever"
	"devsolver/internal/domain"
	"devsolver/internal/logging"
	"devsolver/internal/usecase"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
	dimension    = 256
	fusionWeight = 0.7
	defaultTopK  = 5
)

var (
	store  *memstore.MemoryStore
	search *usecase.SearchUseCase
	ingest *usecase.IngestUseCase
	logger *slog.Logger
)

func init() {
	logger = logging.Discard()
	reset()
}

// reset replaces the store and the use cases built on it.
func reset() {
	store = memstore.NewMemoryStore()
	embedder := embedding.NewGuarded(embedding.NewHashProvider(dimension), nil, embedding.WithLogger(logger))
	chk, err := chunker.NewTextChunker(chunkSize, chunkOverlap)
	if err != nil {
		panic(err)
	}
	queryCache := cache.NewQueryCache(64, 0)

	engine := retriever.NewEngine(embedder, analyzer.NewTokenizer(), fusionWeight, defaultTopK,
		retriever.WithLogger(logger))
	search = usecase.NewSearchUseCase(store, engine, queryCache, defaultTopK, logger)
	ingest = usecase.NewIngestUseCase(store, nil, nil, chk, embedder,
		usecase.WithQueryCache(queryCache),
		usecase.WithIngestLogger(logger),
	)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("devsolverIngest", js.FuncOf(ingestContent))
	js.Global().Set("devsolverSearch", js.FuncOf(searchContent))
	js.Global().Set("devsolverClear", js.FuncOf(clearStore))
	js.Global().Set("devsolverStats", js.FuncOf(getStats))

	<-c
}

func ingestContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 4 {
		return makeError("usage: devsolverIngest(technology, label, title, content)")
	}

	meta := domain.SourceMeta{
		Label: domain.SourceLabel(args[1].String()),
		Title: args[2].String(),
	}
	saved, err := ingest.IngestText(context.Background(), args[0].String(), meta, args[3].String())
	if err != nil {
		return makeError("ingest failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success":  true,
		"document": saved.DocumentID,
		"chunks":   saved.ChunkCount,
	})
}

func searchContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: devsolverSearch(technology, query, [topK], [source])")
	}

	tech := args[0].String()
	query := args[1].String()
	topK := defaultTopK
	if len(args) > 2 {
		topK = args[2].Int()
	}
	var source domain.SourceLabel
	if len(args) > 3 {
		source = domain.SourceLabel(args[3].String())
	}

	results, err := search.HybridSearch(context.Background(), query, tech, topK, source)
	if err != nil {
		return makeError("search failed: " + err.Error())
	}

	output := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		title := r.Chunk.DocumentID
		if r.Source != nil && r.Source.Title != "" {
			title = r.Source.Title
		}
		output = append(output, map[string]interface{}{
			"title":   title,
			"ordinal": r.Chunk.Ordinal,
			"label":   r.SourceLabel,
			"score":   r.Score,
			"text":    r.Chunk.Content,
		})
	}

	return makeResult(map[string]interface{}{
		"results": output,
		"query":   query,
	})
}

func clearStore(this js.Value, args []js.Value) interface{} {
	reset()
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	ctx := context.Background()
	techs, _ := search.Technologies(ctx)

	stats := make([]domain.StoreStats, 0, len(techs))
	for _, tech := range techs {
		s, err := search.Stats(ctx, tech)
		if err != nil {
			continue
		}
		stats = append(stats, s)
	}

	return makeResult(map[string]interface{}{
		"technologies": stats,
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
