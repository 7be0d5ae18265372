package port

import "devsolver/internal/domain"

type Chunker interface {
	Chunk(content, documentID string) []domain.Chunk
}
