package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"devsolver/internal/adapter/analyzer"
	"devsolver/internal/domain"
)

// HashProvider is a deterministic, offline embedder. Each token is hashed
// into one signed bucket and the result is L2-normalised, so texts sharing
// vocabulary point in similar directions.
type HashProvider struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = domain.DefaultDimension
	}
	return &HashProvider{dimension: dimension, tokenizer: analyzer.NewTokenizer()}
}

func (p *HashProvider) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make(domain.EmbeddingVector, p.dimension)
	for _, token := range p.tokenizer.Tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(p.dimension))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	out := make([]domain.EmbeddingVector, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *HashProvider) Dimension() int    { return p.dimension }
func (p *HashProvider) ModelName() string { return "hash" }
