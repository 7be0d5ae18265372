package chunker

import (
	"errors"
	"fmt"

	"devsolver/internal/domain"
)

// ErrInvalidChunkConfig is returned when overlap does not fit inside the chunk size.
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// Metadata keys set on every chunk.
const (
	MetaChunkIndex  = "chunk_index"
	MetaStartOffset = "start_offset"
	MetaEndOffset   = "end_offset"
)

var sentenceTerminators = []string{". ", "! ", "? "}

// TextChunker splits documentation text into overlapping windows that end
// at paragraph or sentence boundaries where possible. Sizes are in characters.
type TextChunker struct {
	size    int
	overlap int
}

// NewTextChunker validates the sizes and creates a chunker.
func NewTextChunker(size, overlap int) (*TextChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunkConfig, overlap, size)
	}
	return &TextChunker{size: size, overlap: overlap}, nil
}

// Size returns the configured chunk size.
func (c *TextChunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *TextChunker) Overlap() int { return c.overlap }

// Chunk splits content into chunks. Empty content yields no chunks.
func (c *TextChunker) Chunk(content, documentID string) []domain.Chunk {
	if content == "" {
		return nil
	}

	text := []rune(content)
	n := len(text)
	half := c.size / 2

	var chunks []domain.Chunk
	emit := func(start, end int) {
		ordinal := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:         ChunkID(documentID, ordinal),
			DocumentID: documentID,
			Content:    string(text[start:end]),
			Ordinal:    ordinal,
			Metadata: map[string]any{
				MetaChunkIndex:  ordinal,
				MetaStartOffset: start,
				MetaEndOffset:   end,
			},
		})
	}

	start := 0
	for {
		end := start + c.size
		if end >= n {
			emit(start, n)
			break
		}
		end = c.snap(text, start, end)

		next := end - c.overlap
		if next <= start {
			next = end
		}

		// A tail shorter than half a chunk is folded into this chunk. The
		// first chunk never absorbs it, so oversized documents always split.
		if next+half >= n && len(chunks) > 0 {
			emit(start, n)
			break
		}

		emit(start, end)
		start = next
	}

	return chunks
}

// snap moves end back to the last paragraph break, or failing that the last
// sentence terminator, provided it lies past the window midpoint.
func (c *TextChunker) snap(text []rune, start, end int) int {
	mid := start + c.size/2

	if p := lastIndex(text, start, end, "\n\n"); p > mid {
		return p + 2
	}

	best := -1
	for _, term := range sentenceTerminators {
		if p := lastIndex(text, start, end, term); p > best {
			best = p
		}
	}
	if best > mid {
		return best + 2
	}
	return end
}

// lastIndex returns the absolute index of the last occurrence of sep lying
// entirely within text[start:end], or -1.
func lastIndex(text []rune, start, end int, sep string) int {
	pat := []rune(sep)
	for i := end - len(pat); i >= start; i-- {
		match := true
		for j, r := range pat {
			if text[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// ChunkID derives the chunk id from its document and ordinal.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, ordinal)
}
