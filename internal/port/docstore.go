package port

import (
	"context"

	"devsolver/internal/domain"
)

// DocumentStore persists chunks, embeddings and source metadata per technology.
// Readers treat returned collections as a point-in-time snapshot.
type DocumentStore interface {
	// LoadChunks returns chunks ordered by document and ordinal. An empty
	// documentID loads every document of the technology.
	LoadChunks(ctx context.Context, technology, documentID string) ([]domain.Chunk, error)

	LoadEmbeddings(ctx context.Context, technology, documentID string) (map[string]domain.EmbeddingVector, error)

	LoadSourceMeta(ctx context.Context, technology string) (map[string]domain.SourceMeta, error)

	// SaveDocument replaces the document's metadata and all of its chunks.
	SaveDocument(ctx context.Context, technology string, meta domain.SourceMeta, chunks []domain.Chunk) error

	SaveEmbeddings(ctx context.Context, technology, documentID string, embeddings map[string]domain.EmbeddingVector) error

	DeleteDocument(ctx context.Context, technology, documentID string) error

	ListTechnologies(ctx context.Context) ([]string, error)

	Stats(ctx context.Context, technology string) (domain.StoreStats, error)

	Close() error
}
