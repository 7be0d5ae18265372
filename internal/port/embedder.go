package port

import (
	"context"

	"devsolver/internal/domain"
)

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) (domain.EmbeddingVector, error)

	// EmbedBatch generates embeddings for texts, one vector per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
