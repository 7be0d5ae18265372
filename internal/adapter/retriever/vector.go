package retriever

import (
	"math"
	"sort"

	"devsolver/internal/domain"
)

// VectorScorer ranks chunks by cosine similarity between the query embedding
// and each chunk's stored embedding. It never calls an embedding provider.
type VectorScorer struct{}

func NewVectorScorer() *VectorScorer {
	return &VectorScorer{}
}

// Score returns the chunks that have a usable embedding, highest first. Chunks
// with no embedding, the zero sentinel, or a mismatched dimension are skipped.
func (s *VectorScorer) Score(query domain.EmbeddingVector, chunks []domain.Chunk, embeddings map[string]domain.EmbeddingVector) []domain.ScoredChunk {
	if len(chunks) == 0 || len(embeddings) == 0 || query.IsZero() {
		return nil
	}

	results := make([]domain.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		vec, ok := embeddings[chunk.ID]
		if !ok || len(vec) != len(query) || vec.IsZero() {
			continue
		}
		results = append(results, domain.ScoredChunk{
			Chunk: chunk,
			Score: CosineSimilarity(query, vec),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

// CosineSimilarity calculates the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
