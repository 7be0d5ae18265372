package domain

import "time"

// DefaultDimension is the system-wide embedding dimension.
const DefaultDimension = 768

// SourceLabel classifies where a document came from.
type SourceLabel string

const (
	SourceOfficial  SourceLabel = "official"
	SourceCommunity SourceLabel = "community"
)

// Valid reports whether l is a known label.
func (l SourceLabel) Valid() bool {
	return l == SourceOfficial || l == SourceCommunity
}

// Chunk is a bounded, retrievable fragment of a source document.
// Chunks are immutable once produced by a chunker.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Ordinal    int            `json:"ordinal"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EmbeddingVector is a dense embedding. The all-zero vector is the
// "no embedding available" sentinel.
type EmbeddingVector []float32

// ZeroVector returns the sentinel vector for the given dimension.
func ZeroVector(dim int) EmbeddingVector {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return make(EmbeddingVector, dim)
}

// IsZero reports whether v is empty or the sentinel zero vector.
func (v EmbeddingVector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// SourceMeta describes a document as supplied by the document store.
type SourceMeta struct {
	DocumentID string      `json:"document_id"`
	Label      SourceLabel `json:"label"`
	Title      string      `json:"title"`
	URL        string      `json:"url,omitempty"`
	Path       string      `json:"path,omitempty"`
	IngestedAt time.Time   `json:"ingested_at"`
	ChunkCount int         `json:"chunk_count"`
}

// ScoredChunk is one entry of a single-strategy ranking.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// ScoredResult is one entry of a fused ranking. Score is only comparable
// within the query that produced it.
type ScoredResult struct {
	Chunk       Chunk       `json:"chunk"`
	Score       float64     `json:"score"`
	SourceLabel SourceLabel `json:"source_label"`
	Source      *SourceMeta `json:"source,omitempty"`
}

// StoreStats summarises one technology in the document store.
type StoreStats struct {
	Technology string `json:"technology"`
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
	Embeddings int    `json:"embeddings"`
}

// Document is extracted documentation text before chunking.
type Document struct {
	Title   string
	Content string
	Path    string // set for files
	URL     string // set for fetched pages
}
