package port

import (
	"context"

	"devsolver/internal/domain"
)

// Searcher is the entry point the answer layer uses to fetch context.
type Searcher interface {
	// HybridSearch returns at most topK results for the query. An empty
	// source filter searches every label.
	HybridSearch(ctx context.Context, query, technology string, topK int, source domain.SourceLabel) ([]domain.ScoredResult, error)
}
