package retriever

import (
	"math"
	"sort"

	"devsolver/internal/domain"
)

type fusionCandidate struct {
	chunk   domain.Chunk
	lexical float64
	vector  float64
	lexPos  int
	vecPos  int
	score   float64
}

// Fuse merges a lexical and a vector ranking into at most topK results.
//
// The combined score is weight*vector + (1-weight)*lexical, with a missing
// side counting as zero. Chunks with a positive combined score are ranked
// first; ties fall back to vector position, lexical position, ordinal and id.
// If fewer than topK chunks scored, the rest are filled from the vector list
// and then the lexical list in their original order, each chunk at most once.
func Fuse(lexical, vector []domain.ScoredChunk, weight float64, topK int) []domain.ScoredResult {
	if topK <= 0 {
		return nil
	}

	candidates := make(map[string]*fusionCandidate, len(lexical)+len(vector))
	get := func(chunk domain.Chunk) *fusionCandidate {
		c, ok := candidates[chunk.ID]
		if !ok {
			c = &fusionCandidate{chunk: chunk, lexPos: math.MaxInt, vecPos: math.MaxInt}
			candidates[chunk.ID] = c
		}
		return c
	}

	for i, sc := range vector {
		c := get(sc.Chunk)
		if c.vecPos == math.MaxInt {
			c.vecPos = i
			c.vector = sc.Score
		}
	}
	for i, sc := range lexical {
		c := get(sc.Chunk)
		if c.lexPos == math.MaxInt {
			c.lexPos = i
			c.lexical = sc.Score
		}
	}

	scored := make([]*fusionCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.score = weight*c.vector + (1-weight)*c.lexical
		if c.score > 0 {
			scored = append(scored, c)
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.vecPos != b.vecPos {
			return a.vecPos < b.vecPos
		}
		if a.lexPos != b.lexPos {
			return a.lexPos < b.lexPos
		}
		if a.chunk.Ordinal != b.chunk.Ordinal {
			return a.chunk.Ordinal < b.chunk.Ordinal
		}
		return a.chunk.ID < b.chunk.ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	results := make([]domain.ScoredResult, 0, topK)
	taken := make(map[string]bool, topK)
	for _, c := range scored {
		results = append(results, domain.ScoredResult{Chunk: c.chunk, Score: c.score})
		taken[c.chunk.ID] = true
	}

	backfill := func(list []domain.ScoredChunk) {
		for _, sc := range list {
			if len(results) >= topK {
				return
			}
			if taken[sc.Chunk.ID] {
				continue
			}
			c := candidates[sc.Chunk.ID]
			results = append(results, domain.ScoredResult{Chunk: c.chunk, Score: c.score})
			taken[sc.Chunk.ID] = true
		}
	}
	backfill(vector)
	backfill(lexical)

	return results
}
