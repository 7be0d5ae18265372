package usecase

import (
	"context"
	"log/slog"

	"devsolver/internal/domain"
	"devsolver/internal/port"
)

// ContextExpander adds the neighbouring chunks of each result so answers see
// the text around a match.
type ContextExpander struct {
	store        port.DocumentStore
	maxExpansion int // neighbours added on each side of a result
	logger       *slog.Logger
}

// NewContextExpander creates a new context expander.
func NewContextExpander(store port.DocumentStore, maxExpansion int, logger *slog.Logger) *ContextExpander {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextExpander{
		store:        store,
		maxExpansion: maxExpansion,
		logger:       logger,
	}
}

// Expand returns results followed by up to maxExpansion neighbours on each
// side of every result, scored at half the result's score. Neighbours are
// never duplicated. Load failures leave the results unchanged.
func (e *ContextExpander) Expand(ctx context.Context, technology string, results []domain.ScoredResult) []domain.ScoredResult {
	if len(results) == 0 || e.maxExpansion <= 0 {
		return results
	}

	included := make(map[string]bool, len(results))
	for _, r := range results {
		included[r.Chunk.ID] = true
	}

	docChunks := make(map[string][]domain.Chunk)
	expanded := make([]domain.ScoredResult, 0, len(results)*(1+2*e.maxExpansion))
	expanded = append(expanded, results...)

	for _, r := range results {
		chunks, ok := docChunks[r.Chunk.DocumentID]
		if !ok {
			loaded, err := e.store.LoadChunks(ctx, technology, r.Chunk.DocumentID)
			if err != nil {
				e.logger.Warn("failed to load neighbouring chunks",
					"document", r.Chunk.DocumentID,
					"error", err)
			}
			chunks = loaded
			docChunks[r.Chunk.DocumentID] = chunks
		}

		byOrdinal := make(map[int]domain.Chunk, len(chunks))
		for _, c := range chunks {
			byOrdinal[c.Ordinal] = c
		}

		for d := 1; d <= e.maxExpansion; d++ {
			for _, ord := range []int{r.Chunk.Ordinal - d, r.Chunk.Ordinal + d} {
				c, ok := byOrdinal[ord]
				if !ok || included[c.ID] {
					continue
				}
				expanded = append(expanded, domain.ScoredResult{
					Chunk:       c,
					Score:       r.Score * 0.5,
					SourceLabel: r.SourceLabel,
					Source:      r.Source,
				})
				included[c.ID] = true
			}
		}
	}

	return expanded
}
