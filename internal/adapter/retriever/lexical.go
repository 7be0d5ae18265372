package retriever

import (
	"math"
	"sort"

	"devsolver/internal/domain"
	"devsolver/internal/port"
)

// LexicalScorer ranks chunks by TF-IDF cosine similarity to a query. The
// vector space is built from the corpus passed to each call, so filtering the
// corpus changes the term statistics.
type LexicalScorer struct {
	tokenizer port.Tokenizer
}

func NewLexicalScorer(tokenizer port.Tokenizer) *LexicalScorer {
	return &LexicalScorer{tokenizer: tokenizer}
}

// Score returns every corpus chunk with its similarity, highest first. Equal
// scores keep corpus order.
func (s *LexicalScorer) Score(query string, corpus []domain.Chunk) []domain.ScoredChunk {
	if len(corpus) == 0 {
		return nil
	}

	termCounts := make([]map[string]int, len(corpus))
	df := make(map[string]int)
	for i, chunk := range corpus {
		counts := make(map[string]int)
		for _, term := range s.tokenizer.Tokenize(chunk.Content) {
			counts[term]++
		}
		for term := range counts {
			df[term]++
		}
		termCounts[i] = counts
	}

	n := float64(len(corpus))
	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = math.Log((1+n)/(1+float64(d))) + 1
	}

	queryVec := make(map[string]float64)
	for _, term := range s.tokenizer.Tokenize(query) {
		if w, ok := idf[term]; ok {
			queryVec[term] += w
		}
	}
	queryNorm := norm(queryVec)

	results := make([]domain.ScoredChunk, len(corpus))
	for i, chunk := range corpus {
		results[i] = domain.ScoredChunk{Chunk: chunk}
		if queryNorm == 0 {
			continue
		}

		var dot, docSq float64
		for term, tf := range termCounts[i] {
			w := float64(tf) * idf[term]
			docSq += w * w
			if q, ok := queryVec[term]; ok {
				dot += q * w
			}
		}
		if docSq == 0 || dot == 0 {
			continue
		}
		results[i].Score = dot / (queryNorm * math.Sqrt(docSq))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

func norm(vec map[string]float64) float64 {
	var sum float64
	for _, w := range vec {
		sum += w * w
	}
	return math.Sqrt(sum)
}
